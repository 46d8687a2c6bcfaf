package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupSuppressesRecordedChange(t *testing.T) {
	d := NewDedup()
	ts := time.Now().UTC()
	d.Record(7, ts)

	assert.True(t, d.Observed(7, ts), "the exact local write is suppressed")
	assert.True(t, d.Observed(7, ts.Add(-time.Second)), "stale echoes of the write are suppressed")
}

func TestDedupPassesNewerChange(t *testing.T) {
	d := NewDedup()
	ts := time.Now().UTC()
	d.Record(7, ts)

	assert.False(t, d.Observed(7, ts.Add(time.Second)), "a later foreign change passes through")
	assert.False(t, d.Observed(8, ts), "other ids are unaffected")
}

func TestDedupKeepsLatestTimestamp(t *testing.T) {
	d := NewDedup()
	ts := time.Now().UTC()
	d.Record(7, ts)
	d.Record(7, ts.Add(-time.Minute))

	assert.True(t, d.Observed(7, ts), "recording an older timestamp does not roll the mark back")
}
