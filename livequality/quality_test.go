//go:build test_unit

package livequality

import (
	"testing"
	"time"

	playsight "github.com/playsight/go-playsight"
	"github.com/playsight/go-playsight/emitter"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
)

type manualClock struct{ now int64 }

func (c *manualClock) Now() time.Time { return time.UnixMilli(c.now) }

type fakeEmitterSource struct{ ev *emitter.Emitter }

func (f *fakeEmitterSource) Events() *emitter.Emitter { return f.ev }

func newTestMachine(t *testing.T) (*Machine, *fakeEmitterSource, *fakeEmitterSource, *manualClock) {
	t.Helper()

	clock := &manualClock{now: 0}
	player := &fakeEmitterSource{ev: emitter.NewEmitter(&playsight.NullLogger{})}
	engine := &fakeEmitterSource{ev: emitter.NewEmitter(&playsight.NullLogger{})}
	m := New(Options{Log: &playsight.NullLogger{}, Clock: clock}, player, engine)
	return m, player, engine, clock
}

func TestHappyPathProgression(t *testing.T) {
	m, player, engine, clock := newTestMachine(t)

	steps := []struct {
		at    int64
		event string
		ev    *fakeEmitterSource
		want  State
	}{
		{10, playsight.EventManifestLoading, engine, StateManifestStartLoad},
		{50, playsight.EventManifestLoaded, engine, StateManifestLoaded},
		{60, playsight.EventLevelLoading, engine, StateLevelStartLoad},
		{90, playsight.EventLevelLoaded, engine, StateLevelLoaded},
		{100, playsight.EventFragLoading, engine, StateFragStartLoad},
		{220, playsight.EventFragLoaded, engine, StateFragLoaded},
		{250, playsight.EventFragBuffered, engine, StateFragBuffered},
		{300, playsight.EventFirstFrame, player, StateFirstFrameViewed},
		{350, playsight.EventTimeProgressed, player, StatePlaying},
	}

	for _, step := range steps {
		clock.now = step.at
		step.ev.ev.Emit(step.event, nil)
		assert.Equal(t, step.want, m.state, "after %s", step.event)
	}

	clock.now = 1000
	q := m.GetQuality()
	assert.Equal(t, StatePlaying, q.State)
	assert.Equal(t, int64(1000), q.TotalViewTime)
	assert.Equal(t, int64(300), q.FirstFrameViewed)
	assert.Equal(t, int64(40), q.ManifestLoadTime)
	assert.Equal(t, int64(30), q.LevelLoadTime)
	assert.Equal(t, int64(120), q.FragLoadTime)
	assert.Equal(t, int64(30), q.FragBufferTime)
	assert.Equal(t, 0, q.BufferCount)
	assert.Equal(t, 0.0, q.BufferRatio)
}

// impliedState is the minimum progress a single processed event witnesses,
// regardless of ordering.
func impliedState(event string) State {
	switch event {
	case playsight.EventManifestLoaded:
		return StateManifestLoaded
	case playsight.EventLevelLoaded:
		return StateLevelLoaded
	case playsight.EventFragLoaded:
		return StateFragLoaded
	case playsight.EventFragBuffered:
		return StateFragBuffered
	case playsight.EventFirstFrame:
		return StateFirstFrameViewed
	default:
		return StateCreated
	}
}

func TestIrreversibilityUnderRandomInterleavings(t *testing.T) {
	events := []string{
		playsight.EventManifestLoading, playsight.EventManifestLoaded,
		playsight.EventLevelLoading, playsight.EventLevelLoaded,
		playsight.EventFragLoading, playsight.EventFragLoaded,
		playsight.EventFragBuffered, playsight.EventFirstFrame,
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		m, player, engine, clock := newTestMachine(t)

		witnessed := StateCreated
		for i := 0; i < 40; i++ {
			clock.now++
			event := events[rng.Intn(len(events))]

			before := m.state
			if event == playsight.EventFirstFrame {
				player.ev.Emit(event, nil)
			} else {
				engine.ev.Emit(event, nil)
			}

			if implied := impliedState(event); implied > witnessed {
				witnessed = implied
			}

			if m.state < before {
				t.Fatalf("trial %d: state regressed %s -> %s on %s", trial, before, m.state, event)
			}
			if m.state < witnessed {
				t.Fatalf("trial %d: state %s below witnessed progress %s after %s", trial, m.state, witnessed, event)
			}
		}
	}
}

func TestManifestRetryCounting(t *testing.T) {
	m, _, engine, _ := newTestMachine(t)

	engine.ev.Emit(playsight.EventManifestLoading, nil)
	engine.ev.Emit(playsight.EventManifestLoading, nil)
	engine.ev.Emit(playsight.EventManifestLoading, nil)

	assert.Equal(t, StateManifestStartLoad, m.state)
	assert.Equal(t, 2, m.manifestRetries)

	// a late manifest-loading firing is ignored entirely
	engine.ev.Emit(playsight.EventManifestLoaded, nil)
	engine.ev.Emit(playsight.EventManifestLoading, nil)
	assert.Equal(t, StateManifestLoaded, m.state)
	assert.Equal(t, 2, m.manifestRetries)
}

func TestLevelAndFragRetryCounting(t *testing.T) {
	m, _, engine, _ := newTestMachine(t)

	engine.ev.Emit(playsight.EventManifestLoaded, nil)
	engine.ev.Emit(playsight.EventLevelLoading, nil)
	engine.ev.Emit(playsight.EventLevelLoading, nil)
	assert.Equal(t, StateLevelStartLoad, m.state)
	assert.Equal(t, 1, m.firstLevelRetries)

	engine.ev.Emit(playsight.EventLevelLoaded, nil)
	engine.ev.Emit(playsight.EventLevelLoading, nil) // past level-loaded, ignored
	assert.Equal(t, 1, m.firstLevelRetries)

	engine.ev.Emit(playsight.EventFragLoading, nil)
	engine.ev.Emit(playsight.EventFragLoading, nil)
	assert.Equal(t, StateFragStartLoad, m.state)
	assert.Equal(t, 1, m.firstFragRetries)

	engine.ev.Emit(playsight.EventFragLoaded, nil)
	engine.ev.Emit(playsight.EventFragLoading, nil) // ignored
	assert.Equal(t, 1, m.firstFragRetries)
}

func TestBufferAccounting(t *testing.T) {
	m, player, _, clock := newTestMachine(t)

	// buffer events before the first frame are ignored
	player.ev.Emit(playsight.EventBufferStart, nil)
	player.ev.Emit(playsight.EventBufferEnd, float64(500))
	assert.Equal(t, StateCreated, m.state)
	assert.Equal(t, 0, m.bufferCount)

	clock.now = 1000
	player.ev.Emit(playsight.EventFirstFrame, nil)

	clock.now = 5000
	player.ev.Emit(playsight.EventBufferStart, nil)
	assert.Equal(t, StateBuffering, m.state)

	// duplicate buffer-start while buffering is a no-op
	player.ev.Emit(playsight.EventBufferStart, nil)
	assert.Equal(t, StateBuffering, m.state)

	clock.now = 6000
	player.ev.Emit(playsight.EventBufferEnd, float64(1000))
	assert.Equal(t, StatePlaying, m.state)
	assert.Equal(t, 1, m.bufferCount)
	assert.Equal(t, int64(1000), m.totalBufferTime)
	assert.Equal(t, []Interval{{5000, 6000}}, m.intervals.items())

	clock.now = 10000
	q := m.GetQuality()
	assert.Equal(t, 0.1, q.BufferRatio)
}

func TestBufferRatioBound(t *testing.T) {
	m, player, _, clock := newTestMachine(t)

	clock.now = 10
	player.ev.Emit(playsight.EventFirstFrame, nil)

	// pathological duration larger than the whole view time
	clock.now = 100
	player.ev.Emit(playsight.EventBufferEnd, float64(100000))

	q := m.GetQuality()
	assert.GreaterOrEqual(t, q.BufferRatio, 0.0)
	assert.LessOrEqual(t, q.BufferRatio, 1.0)

	// interval start is clamped to creation time
	assert.Equal(t, []Interval{{0, 100}}, q.BufferIntervals)
}

func TestBufferIntervalLogBounded(t *testing.T) {
	m, player, _, clock := newTestMachine(t)

	clock.now = 1
	player.ev.Emit(playsight.EventFirstFrame, nil)

	for i := 0; i < 25; i++ {
		clock.now = int64(1000 + i*100)
		player.ev.Emit(playsight.EventBufferEnd, float64(50))
	}

	q := m.GetQuality()
	assert.Len(t, q.BufferIntervals, 20)
	assert.Equal(t, 25, q.BufferCount)
	// oldest entries were evicted
	assert.Equal(t, int64(1500), q.BufferIntervals[0][1])
	assert.Equal(t, int64(3400), q.BufferIntervals[19][1])
}

func TestPlayingBufferingOscillation(t *testing.T) {
	m, player, _, clock := newTestMachine(t)

	clock.now = 10
	player.ev.Emit(playsight.EventFirstFrame, nil)

	for i := 0; i < 3; i++ {
		player.ev.Emit(playsight.EventBufferStart, nil)
		assert.Equal(t, StateBuffering, m.state)
		clock.now += 100
		player.ev.Emit(playsight.EventBufferEnd, float64(100))
		assert.Equal(t, StatePlaying, m.state)
	}

	assert.Equal(t, 3, m.bufferCount)
}

func TestPhaseTimesMissingAreMinusOne(t *testing.T) {
	m, _, engine, _ := newTestMachine(t)

	// loaded without a witnessed start
	engine.ev.Emit(playsight.EventManifestLoaded, nil)

	q := m.GetQuality()
	assert.Equal(t, int64(-1), q.ManifestLoadTime)
	assert.Equal(t, int64(-1), q.LevelLoadTime)
	assert.Equal(t, int64(-1), q.FragLoadTime)
	assert.Equal(t, int64(-1), q.FragBufferTime)
}

func TestDestroyDetachesAndStaysReadable(t *testing.T) {
	m, player, engine, clock := newTestMachine(t)

	clock.now = 10
	player.ev.Emit(playsight.EventFirstFrame, nil)
	m.Destroy()
	m.Destroy() // idempotent

	assert.Equal(t, 0, player.ev.HandlerCount(playsight.EventBufferStart))
	assert.Equal(t, 0, player.ev.HandlerCount(playsight.EventTimeProgressed))
	assert.Equal(t, 0, engine.ev.HandlerCount(playsight.EventManifestLoading))

	player.ev.Emit(playsight.EventBufferStart, nil)
	assert.Equal(t, StateFirstFrameViewed, m.state)

	clock.now = 100
	q := m.GetQuality()
	assert.Equal(t, StateFirstFrameViewed, q.State)
	assert.Equal(t, int64(100), q.TotalViewTime)
}

func TestNilEngineDegradesToPlayerEvents(t *testing.T) {
	clock := &manualClock{now: 0}
	player := &fakeEmitterSource{ev: emitter.NewEmitter(&playsight.NullLogger{})}
	m := New(Options{Log: &playsight.NullLogger{}, Clock: clock}, player, nil)

	clock.now = 40
	player.ev.Emit(playsight.EventFirstFrame, nil)

	q := m.GetQuality()
	assert.Equal(t, StateFirstFrameViewed, q.State)
	assert.Equal(t, int64(40), q.FirstFrameViewed)
}
