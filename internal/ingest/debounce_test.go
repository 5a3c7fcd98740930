package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainBatch(t *testing.T, d *debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.output():
		return batch
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for debounced batch")
		return nil
	}
}

func TestDebouncerCoalescesCreateThenModifyIntoCreate(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	defer d.stop()

	d.add(FileEvent{Path: "a.jsonl", Operation: OpCreate})
	d.add(FileEvent{Path: "a.jsonl", Operation: OpModify})

	batch := drainBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncerCoalescesCreateThenDeleteIntoNothing(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	defer d.stop()

	d.add(FileEvent{Path: "a.jsonl", Operation: OpCreate})
	d.add(FileEvent{Path: "a.jsonl", Operation: OpDelete})

	select {
	case batch := <-d.output():
		assert.Empty(t, batch)
	case <-time.After(50 * time.Millisecond):
		// no batch emitted at all is also an acceptable outcome
	}
}

func TestDebouncerCoalescesDeleteThenCreateIntoModify(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	defer d.stop()

	d.add(FileEvent{Path: "a.jsonl", Operation: OpDelete})
	d.add(FileEvent{Path: "a.jsonl", Operation: OpCreate})

	batch := drainBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncerKeepsDistinctPathsSeparate(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	defer d.stop()

	d.add(FileEvent{Path: "a.jsonl", Operation: OpCreate})
	d.add(FileEvent{Path: "b.jsonl", Operation: OpCreate})

	batch := drainBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncerStopIsIdempotentAndClosesOutput(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	d.stop()
	d.stop()

	_, ok := <-d.output()
	assert.False(t, ok)
}
