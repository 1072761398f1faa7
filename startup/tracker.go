// Package startup produces exactly one timing report per playback run,
// covering page request through first rendered frame. The tracker is a
// process-wide singleton re-armed for every run through StartRun.
package startup

import (
	playsight "github.com/playsight/go-playsight"
	"github.com/playsight/go-playsight/emitter"
	"github.com/playsight/go-playsight/timeline"
)

// Player is the structural event source for a run.
type Player interface {
	Events() *emitter.Emitter
}

// SubEngine is the HLS-like engine the player attaches mid-run. Its handle
// arrives as the payload of the engine-attaching event.
type SubEngine interface {
	Events() *emitter.Emitter
}

// Report maps a milestone code to its millisecond offset from the run
// origin. Milestones that never fired are absent.
type Report map[string]int64

type Reporter func(Report)

type Options struct {
	Log   playsight.Logger
	Clock playsight.Clock
}

type Tracker struct {
	log   playsight.Logger
	clock playsight.Clock

	timeline *timeline.Timeline
	reporter Reporter

	player  Player
	engine  SubEngine
	subs    []*emitter.Subscription
	isAdRun bool

	// emitted guards the terminal path: both terminal candidates may fire
	resolved bool
	emitted  bool
}

var current *Tracker

// StartRun returns the process tracker, reset for a fresh run, and stamps
// the run origin. Call once per playback attempt, before AttachPlayer.
// Resetting works even if a previous run never reached its terminal event.
func StartRun(opts Options) *Tracker {
	if current == nil {
		current = &Tracker{}
	}

	t := current
	t.log = opts.Log
	if t.log == nil {
		t.log = &playsight.NullLogger{}
	}
	t.clock = opts.Clock
	if t.clock == nil {
		t.clock = playsight.SystemClock{}
	}

	t.detach()
	t.timeline = timeline.New(t.log, t.clock)
	t.isAdRun = false
	t.resolved = false
	t.emitted = false

	t.timeline.Record(MilestonePageRequested.Code())
	t.log.Debugf("startup run started")
	return t
}

// AttachPlayer wires the structural and milestone listeners. Attaching a
// second player without a new run is a caller bug.
func (t *Tracker) AttachPlayer(p Player) {
	if t.player != nil {
		t.log.Errorf("player already attached to startup tracker")
		return
	}

	t.player = p
	ev := p.Events()

	t.subs = append(t.subs, ev.Once(playsight.EventEngineAttaching, t.onEngineAttaching))

	// whichever readiness event fires first decides the run kind and
	// permanently silences the other path
	var adSub, contentSub *emitter.Subscription
	adSub = ev.Once(playsight.EventAdReady, func(any) {
		t.resolveRunKind(true)
		contentSub.Cancel()
	})
	contentSub = ev.Once(playsight.EventContentReady, func(any) {
		t.resolveRunKind(false)
		adSub.Cancel()
	})
	t.subs = append(t.subs, adSub, contentSub)

	t.subs = append(t.subs,
		ev.Once(playsight.EventAdTimeProgressed, func(any) { t.terminal() }),
		ev.Once(playsight.EventTimeProgressed, func(any) { t.terminal() }),
		ev.Once(playsight.EventPlayerRemoved, func(any) { t.detach() }),
	)

	for _, b := range playerMilestones {
		milestone := b.milestone
		t.subs = append(t.subs, ev.Once(b.sourceEvent, func(any) { t.RecordEvent(milestone) }))
	}
}

// AttachReporter registers the report sink. Last registration wins.
func (t *Tracker) AttachReporter(reporter Reporter) {
	t.reporter = reporter
}

// RecordEvent stamps a milestone into the run timeline.
func (t *Tracker) RecordEvent(m Milestone) {
	t.log.Debugf("startup milestone %s", m.Code())
	t.timeline.Record(m.Code())
}

// IsAdRun reports whether this run resolved to the ad path.
func (t *Tracker) IsAdRun() bool {
	return t.isAdRun
}

func (t *Tracker) resolveRunKind(isAd bool) {
	if t.resolved {
		return
	}

	t.resolved = true
	t.isAdRun = isAd
	t.log.Debugf("startup run resolved, ad=%v", isAd)
}

func (t *Tracker) onEngineAttaching(payload any) {
	engine, ok := payload.(SubEngine)
	if !ok {
		t.log.Errorf("engine attaching without a valid engine handle, skipping engine milestones")
		return
	}

	t.engine = engine
	ev := engine.Events()
	for _, b := range subEngineMilestones {
		milestone := b.milestone
		t.subs = append(t.subs, ev.Once(b.sourceEvent, func(any) { t.RecordEvent(milestone) }))
	}
}

// terminal handles the first frame: record, report once, tear down.
func (t *Tracker) terminal() {
	if t.emitted {
		return
	}
	t.emitted = true

	t.RecordEvent(MilestoneFirstFrame)

	report := t.buildReport()
	if t.reporter != nil {
		t.reporter(report)
	}

	t.detach()
}

func (t *Tracker) buildReport() Report {
	origin, ok := t.timeline.Get(MilestonePageRequested.Code())
	if !ok {
		t.log.Errorf("startup run has no origin timestamp, reporting empty")
		return Report{}
	}

	report := Report{}
	for _, code := range t.timeline.Names() {
		ts, _ := t.timeline.Get(code)
		report[code] = ts - origin
	}
	return report
}

// detach cancels every listener registered during this run and drops the
// player and engine references. Must stay symmetric with AttachPlayer and
// onEngineAttaching.
func (t *Tracker) detach() {
	for _, sub := range t.subs {
		sub.Cancel()
	}

	t.subs = nil
	t.player = nil
	t.engine = nil
}
