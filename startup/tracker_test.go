//go:build test_unit

package startup

import (
	"testing"
	"time"

	playsight "github.com/playsight/go-playsight"
	"github.com/playsight/go-playsight/emitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct{ now int64 }

func (c *manualClock) Now() time.Time { return time.UnixMilli(c.now) }

type fakeEmitterSource struct{ ev *emitter.Emitter }

func (f *fakeEmitterSource) Events() *emitter.Emitter { return f.ev }

func newFakeSource() *fakeEmitterSource {
	return &fakeEmitterSource{ev: emitter.NewEmitter(&playsight.NullLogger{})}
}

func startTestRun(t *testing.T) (*Tracker, *manualClock) {
	t.Helper()

	clock := &manualClock{now: 100}
	tracker := StartRun(Options{Log: &playsight.NullLogger{}, Clock: clock})
	return tracker, clock
}

func TestStartupOffsets(t *testing.T) {
	tracker, clock := startTestRun(t)

	var reports []Report
	tracker.AttachReporter(func(r Report) { reports = append(reports, r) })

	player := newFakeSource()
	tracker.AttachPlayer(player)

	clock.now = 150
	player.ev.Emit(playsight.EventPlayerSetup, nil)

	engine := newFakeSource()
	player.ev.Emit(playsight.EventEngineAttaching, SubEngine(engine))

	clock.now = 180
	engine.ev.Emit(playsight.EventManifestLoaded, nil)

	clock.now = 400
	player.ev.Emit(playsight.EventTimeProgressed, nil)

	require.Len(t, reports, 1)
	report := reports[0]
	assert.Equal(t, int64(0), report["pge_req"])
	assert.Equal(t, int64(50), report["plr_stp"])
	assert.Equal(t, int64(80), report["man_lod"])
	assert.Equal(t, int64(300), report["fst_frm"])

	// never-fired milestones are absent, not zeroed
	_, ok := report["adp_req"]
	assert.False(t, ok)
	_, ok = report["man_req"]
	assert.False(t, ok)
}

func TestStartupSingleReport(t *testing.T) {
	tracker, _ := startTestRun(t)

	fired := 0
	tracker.AttachReporter(func(Report) { fired++ })

	player := newFakeSource()
	tracker.AttachPlayer(player)

	player.ev.Emit(playsight.EventAdTimeProgressed, nil)
	player.ev.Emit(playsight.EventTimeProgressed, nil)
	player.ev.Emit(playsight.EventAdTimeProgressed, nil)

	assert.Equal(t, 1, fired)

	// everything detached after the terminal report
	assert.Equal(t, 0, player.ev.HandlerCount(playsight.EventTimeProgressed))
	assert.Equal(t, 0, player.ev.HandlerCount(playsight.EventEngineAttaching))
	assert.Equal(t, 0, player.ev.HandlerCount(playsight.EventPlayerRemoved))
	assert.Nil(t, tracker.player)

	// a fresh run cannot re-emit the stale report
	tracker2 := StartRun(Options{})
	assert.Same(t, tracker, tracker2)
	assert.False(t, tracker2.emitted)
	assert.Equal(t, 1, tracker2.timeline.Len())
}

func TestAdContentReadyRace(t *testing.T) {
	tracker, _ := startTestRun(t)
	player := newFakeSource()
	tracker.AttachPlayer(player)

	player.ev.Emit(playsight.EventContentReady, nil)
	assert.False(t, tracker.IsAdRun())

	// the losing path is silenced, a later ad break cannot flip the kind
	assert.Equal(t, 0, player.ev.HandlerCount(playsight.EventAdReady))
	player.ev.Emit(playsight.EventAdReady, nil)
	assert.False(t, tracker.IsAdRun())
}

func TestAdReadyFirstMarksAdRun(t *testing.T) {
	tracker, _ := startTestRun(t)
	player := newFakeSource()
	tracker.AttachPlayer(player)

	player.ev.Emit(playsight.EventAdReady, nil)
	assert.True(t, tracker.IsAdRun())
	assert.Equal(t, 0, player.ev.HandlerCount(playsight.EventContentReady))
}

func TestDoubleAttachPlayerIsRejected(t *testing.T) {
	tracker, _ := startTestRun(t)

	first := newFakeSource()
	second := newFakeSource()
	tracker.AttachPlayer(first)
	tracker.AttachPlayer(second)

	assert.Equal(t, 0, second.ev.HandlerCount(playsight.EventTimeProgressed))

	fired := 0
	tracker.AttachReporter(func(Report) { fired++ })
	second.ev.Emit(playsight.EventTimeProgressed, nil)
	assert.Equal(t, 0, fired)
}

func TestEngineAttachingWithoutHandleIsDegraded(t *testing.T) {
	tracker, _ := startTestRun(t)
	player := newFakeSource()
	tracker.AttachPlayer(player)

	player.ev.Emit(playsight.EventEngineAttaching, "not an engine")
	assert.Nil(t, tracker.engine)

	// player milestones still work
	fired := 0
	tracker.AttachReporter(func(r Report) {
		fired++
		_, ok := r["plr_stp"]
		assert.True(t, ok)
	})
	player.ev.Emit(playsight.EventPlayerSetup, nil)
	player.ev.Emit(playsight.EventTimeProgressed, nil)
	assert.Equal(t, 1, fired)
}

func TestPlayerRemovalDetachesWithoutReport(t *testing.T) {
	tracker, _ := startTestRun(t)
	player := newFakeSource()
	tracker.AttachPlayer(player)

	fired := 0
	tracker.AttachReporter(func(Report) { fired++ })

	player.ev.Emit(playsight.EventPlayerRemoved, nil)
	assert.Equal(t, 0, fired)
	assert.Nil(t, tracker.player)
	assert.Equal(t, 0, player.ev.HandlerCount(playsight.EventTimeProgressed))

	// terminal events after removal are dead
	player.ev.Emit(playsight.EventTimeProgressed, nil)
	assert.Equal(t, 0, fired)
}

func TestEngineMilestonesDetachOnTerminal(t *testing.T) {
	tracker, _ := startTestRun(t)
	player := newFakeSource()
	tracker.AttachPlayer(player)

	engine := newFakeSource()
	player.ev.Emit(playsight.EventEngineAttaching, SubEngine(engine))
	assert.Equal(t, 1, engine.ev.HandlerCount(playsight.EventManifestLoaded))

	player.ev.Emit(playsight.EventTimeProgressed, nil)
	assert.Equal(t, 0, engine.ev.HandlerCount(playsight.EventManifestLoaded))
	assert.Nil(t, tracker.engine)
}

func TestEmptyReportWithoutOrigin(t *testing.T) {
	tracker, _ := startTestRun(t)
	tracker.timeline.Reset() // defensive case: origin lost

	var got Report
	tracker.AttachReporter(func(r Report) { got = r })

	player := newFakeSource()
	tracker.AttachPlayer(player)
	player.ev.Emit(playsight.EventTimeProgressed, nil)

	assert.NotNil(t, got)
	assert.Empty(t, got)
}
