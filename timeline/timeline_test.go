//go:build test_unit

package timeline

import (
	"testing"
	"time"

	playsight "github.com/playsight/go-playsight"
	"github.com/stretchr/testify/assert"
)

type manualClock struct{ now int64 }

func (c *manualClock) Now() time.Time { return time.UnixMilli(c.now) }

func TestTimelineRecordAndSince(t *testing.T) {
	clock := &manualClock{now: 100}
	tl := New(&playsight.NullLogger{}, clock)

	tl.Record("origin")
	clock.now = 180
	tl.Record("manifest_loaded")

	offset, ok := tl.Since("origin", "manifest_loaded")
	assert.True(t, ok)
	assert.Equal(t, int64(80), offset)

	_, ok = tl.Since("origin", "never_recorded")
	assert.False(t, ok)

	_, ok = tl.Since("missing_base", "manifest_loaded")
	assert.False(t, ok)
}

func TestTimelineDuplicateWriteOverwrites(t *testing.T) {
	clock := &manualClock{now: 10}
	tl := New(&playsight.NullLogger{}, clock)

	tl.Record("setup")
	clock.now = 20
	tl.Record("setup")

	ts, ok := tl.Get("setup")
	assert.True(t, ok)
	assert.Equal(t, int64(20), ts)
	assert.Equal(t, 1, tl.Len())
	assert.Equal(t, []string{"setup"}, tl.Names())
}

func TestTimelineReset(t *testing.T) {
	clock := &manualClock{now: 5}
	tl := New(&playsight.NullLogger{}, clock)

	tl.Record("a")
	tl.Record("b")
	tl.Reset()

	assert.Equal(t, 0, tl.Len())
	assert.Empty(t, tl.Names())

	_, ok := tl.Get("a")
	assert.False(t, ok)
}

func TestTimelineNamesInsertionOrder(t *testing.T) {
	clock := &manualClock{now: 1}
	tl := New(&playsight.NullLogger{}, clock)

	for _, name := range []string{"c", "a", "b"} {
		clock.now++
		tl.Record(name)
	}

	assert.Equal(t, []string{"c", "a", "b"}, tl.Names())
}
