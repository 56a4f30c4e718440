package ws

import (
	"sync"
	"testing"
	"time"
)

func TestConnectionActivityClock(t *testing.T) {
	c := &Connection{ID: "c1"}

	if !c.LastActivity().IsZero() {
		t.Fatal("an untouched connection should report zero activity")
	}

	before := time.Now()
	c.Touch()
	got := c.LastActivity()
	if got.Before(before) {
		t.Fatalf("activity timestamp %v predates the touch at %v", got, before)
	}
}

func TestConnectionActivityConcurrent(t *testing.T) {
	c := &Connection{ID: "c1"}
	c.Touch()
	first := c.LastActivity()

	// Read workers touch while the heartbeat reads; neither side may observe
	// a torn or rewound timestamp.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Touch()
			if c.LastActivity().IsZero() {
				t.Error("activity must never read as zero once touched")
			}
		}()
	}
	wg.Wait()

	if c.LastActivity().Before(first) {
		t.Fatal("activity timestamp went backwards")
	}
}
