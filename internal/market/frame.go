package market

import (
	"sort"
	"sync"
	"time"
)

// Frame is a rolling in-memory window of bars for one (instrument, interval),
// ordered by open time, deduplicated by timestamp. A bar for a still-forming
// interval may be corrected in place; once the interval elapses the stored
// value is final.
type Frame struct {
	mu   sync.RWMutex
	max  int
	bars []Bar
}

func NewFrame(max int) *Frame {
	if max <= 0 {
		max = 500
	}
	return &Frame{max: max}
}

// Put inserts or replaces the bar with the same open time, keeping order and
// trimming to capacity.
func (f *Frame) Put(b Bar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := sort.Search(len(f.bars), func(i int) bool {
		return !f.bars[i].Time.Before(b.Time)
	})
	if idx < len(f.bars) && f.bars[idx].Time.Equal(b.Time) {
		f.bars[idx] = b
	} else {
		f.bars = append(f.bars, Bar{})
		copy(f.bars[idx+1:], f.bars[idx:])
		f.bars[idx] = b
	}
	if over := len(f.bars) - f.max; over > 0 {
		f.bars = append(f.bars[:0:0], f.bars[over:]...)
	}
}

// PutAll inserts a batch.
func (f *Frame) PutAll(bars []Bar) {
	for _, b := range bars {
		f.Put(b)
	}
}

// At returns the bar with exactly the given open time.
func (f *Frame) At(ts time.Time) (Bar, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	idx := sort.Search(len(f.bars), func(i int) bool {
		return !f.bars[i].Time.Before(ts)
	})
	if idx < len(f.bars) && f.bars[idx].Time.Equal(ts) {
		return f.bars[idx], true
	}
	return Bar{}, false
}

// Window returns a copy of up to n most recent bars, oldest first.
func (f *Frame) Window(n int) []Bar {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if n <= 0 || n > len(f.bars) {
		n = len(f.bars)
	}
	out := make([]Bar, n)
	copy(out, f.bars[len(f.bars)-n:])
	return out
}

// Len returns the number of cached bars.
func (f *Frame) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.bars)
}
