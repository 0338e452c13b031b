package gateway

import (
	"sync"
	"testing"
)

func TestIDAllocatorStartsAfterBase(t *testing.T) {
	a := NewIDAllocator(0)
	for want := int64(1); want <= 3; want++ {
		if got := a.Next(); got != want {
			t.Fatalf("Next()=%d, expected %d", got, want)
		}
	}
	if a.Current() != 3 {
		t.Fatalf("Current()=%d, expected 3", a.Current())
	}
}

func TestIDAllocatorConcurrentUnique(t *testing.T) {
	a := NewIDAllocator(0)
	const workers, per = 8, 200

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				id := a.Next()
				mu.Lock()
				if seen[id] {
					t.Errorf("id %d handed out twice", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != workers*per {
		t.Fatalf("got %d unique ids, expected %d", len(seen), workers*per)
	}
}

func TestIDAllocatorRaiseTo(t *testing.T) {
	tests := []struct {
		name  string
		start int64
		floor int64
		want  int64
	}{
		{name: "raise", start: 0, floor: 10, want: 10},
		{name: "never lowers", start: 20, floor: 5, want: 21},
		{name: "equal", start: 9, floor: 10, want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewIDAllocator(tt.start)
			a.RaiseTo(tt.floor)
			if got := a.Next(); got != tt.want {
				t.Fatalf("Next()=%d, expected %d", got, tt.want)
			}
		})
	}
}
