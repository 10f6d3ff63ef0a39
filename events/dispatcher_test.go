package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"voting-workflow/models"
)

func makeEntries(n int) []Entry {
	log := NewLog()
	for i := 0; i < n; i++ {
		log.Append(models.VoterRegistered(voterA))
	}
	return log.Entries()
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	d := NewDispatcher(16, zaptest.NewLogger(t))

	var mu sync.Mutex
	var got []uint64
	d.Subscribe(func(e Entry) {
		mu.Lock()
		got = append(got, e.Index)
		mu.Unlock()
	})
	d.Start()

	for _, e := range makeEntries(10) {
		assert.True(t, d.Publish(e))
	}
	d.Stop()

	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	assert.Zero(t, d.Dropped())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(2, nil)
	var dropped []uint64
	d.OnDrop(func(e Entry) { dropped = append(dropped, e.Index) })

	// Not started: nothing drains the queue.
	entries := makeEntries(3)
	assert.True(t, d.Publish(entries[0]))
	assert.True(t, d.Publish(entries[1]))
	assert.False(t, d.Publish(entries[2]))

	assert.Equal(t, uint64(1), d.Dropped())
	assert.Equal(t, []uint64{2}, dropped)
}

func TestDispatcherStopDrainsWithoutWorker(t *testing.T) {
	d := NewDispatcher(4, nil)
	var got int
	d.Subscribe(func(Entry) { got++ })

	for _, e := range makeEntries(3) {
		d.Publish(e)
	}
	d.Stop()

	assert.Equal(t, 3, got)
	assert.False(t, d.Publish(makeEntries(1)[0]), "publish after stop")
}

func TestDispatcherSurvivesPanickingHandler(t *testing.T) {
	d := NewDispatcher(4, zaptest.NewLogger(t))
	var got int
	d.Subscribe(func(Entry) { panic("boom") })
	d.Subscribe(func(Entry) { got++ })
	d.Start()

	for _, e := range makeEntries(2) {
		d.Publish(e)
	}
	d.Stop()
	d.Stop()

	assert.Equal(t, 2, got)
}
