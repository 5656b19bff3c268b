package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func barAt(min int, close float64) Bar {
	base := time.Date(2026, 8, 31, 9, 15, 0, 0, time.UTC)
	return Bar{Time: base.Add(time.Duration(min) * time.Minute), High: close + 1, Low: close - 1, Close: close, Open: close - 0.5}
}

func TestFramePutKeepsOrder(t *testing.T) {
	f := NewFrame(10)
	f.Put(barAt(10, 102))
	f.Put(barAt(0, 100))
	f.Put(barAt(5, 101))

	w := f.Window(0)
	assert.Len(t, w, 3)
	assert.Equal(t, 100.0, w[0].Close)
	assert.Equal(t, 101.0, w[1].Close)
	assert.Equal(t, 102.0, w[2].Close)
}

func TestFramePutReplacesSameTimestamp(t *testing.T) {
	f := NewFrame(10)
	f.Put(barAt(0, 100))
	f.Put(barAt(0, 105))

	assert.Equal(t, 1, f.Len())
	b, ok := f.At(barAt(0, 0).Time)
	assert.True(t, ok)
	assert.Equal(t, 105.0, b.Close)
}

func TestFrameTrimsToCapacity(t *testing.T) {
	f := NewFrame(3)
	for i := 0; i < 5; i++ {
		f.Put(barAt(i*5, 100+float64(i)))
	}
	w := f.Window(0)
	assert.Len(t, w, 3)
	assert.Equal(t, 102.0, w[0].Close)
	assert.Equal(t, 104.0, w[2].Close)
}

func TestFrameWindowRecent(t *testing.T) {
	f := NewFrame(10)
	for i := 0; i < 5; i++ {
		f.Put(barAt(i*5, 100+float64(i)))
	}
	w := f.Window(2)
	assert.Len(t, w, 2)
	assert.Equal(t, 103.0, w[0].Close)
	assert.Equal(t, 104.0, w[1].Close)
}

func TestFrameAtMissing(t *testing.T) {
	f := NewFrame(10)
	f.Put(barAt(0, 100))
	_, ok := f.At(barAt(5, 0).Time)
	assert.False(t, ok)
}
