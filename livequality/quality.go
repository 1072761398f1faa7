// Package livequality classifies how far a live playback attempt has
// progressed through its loading pipeline and accumulates buffering
// statistics. Duplicate and out-of-order load events are expected under
// retry conditions; every guard here is a silent no-op, never an error.
package livequality

import (
	"math"

	playsight "github.com/playsight/go-playsight"
	"github.com/playsight/go-playsight/emitter"
	"github.com/playsight/go-playsight/timeline"
)

// maxBufferIntervals bounds the interval log handed to transport.
const maxBufferIntervals = 20

// Player is the playback/buffer event source.
type Player interface {
	Events() *emitter.Emitter
}

// SubEngine is the load-lifecycle event source.
type SubEngine interface {
	Events() *emitter.Emitter
}

// Phase endpoint names in the phase timeline.
const (
	phaseManifestStart  = "manifest_start"
	phaseManifestLoaded = "manifest_loaded"
	phaseLevelStart     = "level_start"
	phaseLevelLoaded    = "level_loaded"
	phaseFragStart      = "frag_start"
	phaseFragLoaded     = "frag_loaded"
	phaseFragBuffered   = "frag_buffered"
)

// Quality is the point-in-time snapshot returned by GetQuality. Phase
// elapsed times are -1 when either endpoint is missing.
type Quality struct {
	State            State      `json:"state"`
	TotalViewTime    int64      `json:"total_view_time"`
	FirstFrameViewed int64      `json:"first_frame_viewed"`
	TotalBufferTime  int64      `json:"total_buffer_time"`
	BufferCount      int        `json:"buffer_count"`
	BufferRatio      float64    `json:"buffer_ratio"`
	BufferIntervals  []Interval `json:"buffer_intervals"`

	ManifestRetries   int `json:"manifest_retries"`
	FirstLevelRetries int `json:"first_level_retries"`
	FirstFragRetries  int `json:"first_frag_retries"`

	ManifestLoadTime int64 `json:"manifest_load_time"`
	LevelLoadTime    int64 `json:"level_load_time"`
	FragLoadTime     int64 `json:"frag_load_time"`
	FragBufferTime   int64 `json:"frag_buffer_time"`
}

type Options struct {
	Log   playsight.Logger
	Clock playsight.Clock
}

type Machine struct {
	log   playsight.Logger
	clock playsight.Clock

	state   State
	created int64

	firstFrameViewed int64
	totalBufferTime  int64
	bufferCount      int
	intervals        *intervalRing

	manifestRetries   int
	firstLevelRetries int
	firstFragRetries  int

	phases *timeline.Timeline

	playerEv  *emitter.Emitter
	subs      []*emitter.Subscription
	destroyed bool
}

// New creates the machine alongside a live playback wrapper and subscribes
// to both event sources. A nil engine degrades to player events only.
func New(opts Options, player Player, engine SubEngine) *Machine {
	m := &Machine{
		log:       opts.Log,
		clock:     opts.Clock,
		state:     StateCreated,
		intervals: newIntervalRing(maxBufferIntervals),
	}

	if m.log == nil {
		m.log = &playsight.NullLogger{}
	}
	if m.clock == nil {
		m.clock = playsight.SystemClock{}
	}

	m.created = m.clock.Now().UnixMilli()
	m.phases = timeline.New(m.log, m.clock)

	m.playerEv = player.Events()
	m.subs = append(m.subs,
		m.playerEv.Once(playsight.EventFirstFrame, m.onFirstFrame),
		m.playerEv.On(playsight.EventBufferStart, m.onBufferStart),
		m.playerEv.On(playsight.EventBufferEnd, m.onBufferEnd),
	)

	if engine == nil {
		m.log.Errorf("live quality machine created without a sub-engine, load milestones unavailable")
		return m
	}

	engineEv := engine.Events()
	m.subs = append(m.subs,
		engineEv.On(playsight.EventManifestLoading, m.onManifestLoading),
		engineEv.On(playsight.EventManifestLoaded, m.onManifestLoaded),
		engineEv.On(playsight.EventLevelLoading, m.onLevelLoading),
		engineEv.On(playsight.EventLevelLoaded, m.onLevelLoaded),
		engineEv.On(playsight.EventFragLoading, m.onFragLoading),
		engineEv.On(playsight.EventFragLoaded, m.onFragLoaded),
		engineEv.On(playsight.EventFragBuffered, m.onFragBuffered),
	)

	return m
}

// setState applies a would-be new state unless it would regress within the
// irreversible prefix. Reports whether the state actually moved.
func (m *Machine) setState(s State) bool {
	if s <= StateFirstFrameViewed && s <= m.state {
		return false
	}

	m.state = s
	return true
}

func (m *Machine) onManifestLoading(any) {
	switch {
	case m.state == StateCreated:
		m.setState(StateManifestStartLoad)
		m.phases.Record(phaseManifestStart)
	case m.state == StateManifestStartLoad:
		m.manifestRetries++
	}
}

func (m *Machine) onManifestLoaded(any) {
	if m.setState(StateManifestLoaded) {
		m.phases.Record(phaseManifestLoaded)
	}
}

func (m *Machine) onLevelLoading(any) {
	switch {
	case m.state >= StateLevelLoaded:
	case m.state <= StateManifestLoaded:
		m.setState(StateLevelStartLoad)
		m.phases.Record(phaseLevelStart)
	default:
		m.firstLevelRetries++
	}
}

func (m *Machine) onLevelLoaded(any) {
	if m.setState(StateLevelLoaded) {
		m.phases.Record(phaseLevelLoaded)
	}
}

func (m *Machine) onFragLoading(any) {
	switch {
	case m.state <= StateLevelLoaded:
		m.setState(StateFragStartLoad)
		m.phases.Record(phaseFragStart)
	case m.state == StateFragStartLoad:
		m.firstFragRetries++
	}
}

func (m *Machine) onFragLoaded(any) {
	if m.setState(StateFragLoaded) {
		m.phases.Record(phaseFragLoaded)
	}
}

func (m *Machine) onFragBuffered(any) {
	if m.state >= StateFirstFrameViewed {
		return
	}

	if m.setState(StateFragBuffered) {
		m.phases.Record(phaseFragBuffered)
	}
}

func (m *Machine) onFirstFrame(any) {
	m.firstFrameViewed = m.clock.Now().UnixMilli() - m.created

	// only from here on do playing/buffering oscillations make sense
	m.subs = append(m.subs, m.playerEv.On(playsight.EventTimeProgressed, m.onProgress))
	m.setState(StateFirstFrameViewed)
}

func (m *Machine) onProgress(any) {
	if m.state >= StateFirstFrameViewed {
		m.setState(StatePlaying)
	}
}

func (m *Machine) onBufferStart(any) {
	if m.state < StateFirstFrameViewed || m.state == StateBuffering {
		return
	}

	m.setState(StateBuffering)
}

func (m *Machine) onBufferEnd(payload any) {
	if m.state < StateFirstFrameViewed {
		return
	}

	duration := durationMs(payload)
	now := m.clock.Now().UnixMilli()
	start := now - duration
	if start < m.created {
		start = m.created
	}

	m.intervals.push(Interval{start, now})
	m.totalBufferTime += duration
	m.bufferCount++
	m.setState(StatePlaying)
}

// GetQuality computes the current snapshot. Allowed after Destroy, but
// flagged as stale in the logs.
func (m *Machine) GetQuality() Quality {
	if m.destroyed {
		m.log.Warnf("stale quality snapshot requested after destroy")
	}

	now := m.clock.Now().UnixMilli()
	totalViewTime := now - m.created

	q := Quality{
		State:            m.state,
		TotalViewTime:    totalViewTime,
		FirstFrameViewed: m.firstFrameViewed,
		TotalBufferTime:  m.totalBufferTime,
		BufferCount:      m.bufferCount,
		BufferIntervals:  m.intervals.items(),

		ManifestRetries:   m.manifestRetries,
		FirstLevelRetries: m.firstLevelRetries,
		FirstFragRetries:  m.firstFragRetries,

		ManifestLoadTime: m.phaseElapsed(phaseManifestStart, phaseManifestLoaded),
		LevelLoadTime:    m.phaseElapsed(phaseLevelStart, phaseLevelLoaded),
		FragLoadTime:     m.phaseElapsed(phaseFragStart, phaseFragLoaded),
		FragBufferTime:   m.phaseElapsed(phaseFragLoaded, phaseFragBuffered),
	}

	// The guard checks the effective view time but the ratio divides by the
	// total view time; this mirrors the shipped behavior and is pending
	// product confirmation before it can change.
	effectiveViewTime := totalViewTime - m.firstFrameViewed
	if m.state >= StateFirstFrameViewed && effectiveViewTime > 0 {
		ratio := float64(m.totalBufferTime) / float64(totalViewTime)
		q.BufferRatio = math.Round(math.Min(ratio, 1)*100) / 100
	}

	return q
}

func (m *Machine) phaseElapsed(start, end string) int64 {
	elapsed, ok := m.phases.Since(start, end)
	if !ok || elapsed < 0 {
		return -1
	}
	return elapsed
}

// Destroy cancels every subscription. The machine stays readable.
func (m *Machine) Destroy() {
	if m.destroyed {
		return
	}

	for _, sub := range m.subs {
		sub.Cancel()
	}
	m.subs = nil
	m.destroyed = true
	m.log.Debugf("live quality machine destroyed in state %s", m.state)
}

func durationMs(payload any) int64 {
	switch v := payload.(type) {
	case float64:
		return int64(math.Round(v))
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
