// Package timeline implements the milestone timeline: an insertion-ordered
// map of named events to millisecond timestamps. A name is written at most
// once per run unless the timeline is reset; a duplicate write overwrites
// with a warning (callers are not supposed to rely on that).
package timeline

import (
	playsight "github.com/playsight/go-playsight"
)

type Timeline struct {
	log   playsight.Logger
	clock playsight.Clock

	entries map[string]int64
	order   []string
}

func New(log playsight.Logger, clock playsight.Clock) *Timeline {
	return &Timeline{
		log:     log,
		clock:   clock,
		entries: map[string]int64{},
	}
}

// Record stamps name with the current clock time and returns the timestamp.
func (t *Timeline) Record(name string) int64 {
	return t.RecordAt(name, t.clock.Now().UnixMilli())
}

// RecordAt stamps name with an explicit timestamp. Last write wins.
func (t *Timeline) RecordAt(name string, ts int64) int64 {
	if _, ok := t.entries[name]; ok {
		t.log.Warnf("timeline event %s recorded twice", name)
	} else {
		t.order = append(t.order, name)
	}

	t.entries[name] = ts
	return ts
}

func (t *Timeline) Get(name string) (int64, bool) {
	ts, ok := t.entries[name]
	return ts, ok
}

// Since returns the offset of name relative to base. The second return is
// false if either event was never recorded.
func (t *Timeline) Since(base, name string) (int64, bool) {
	baseTs, ok := t.entries[base]
	if !ok {
		return 0, false
	}

	ts, ok := t.entries[name]
	if !ok {
		return 0, false
	}

	return ts - baseTs, true
}

// Names returns the recorded event names in insertion order.
func (t *Timeline) Names() []string {
	names := make([]string, len(t.order))
	copy(names, t.order)
	return names
}

func (t *Timeline) Len() int {
	return len(t.entries)
}

// Reset clears every entry, starting a new run.
func (t *Timeline) Reset() {
	t.entries = map[string]int64{}
	t.order = nil
}
