package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClockAdvance(t *testing.T) {
	assert := assert.New(t)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewMockClock(start)
	assert.Equal(start, clk.Now())

	short := clk.After(time.Second)
	long := clk.After(time.Minute)
	assert.Equal(2, clk.WaiterCount())

	clk.Advance(500 * time.Millisecond)
	select {
	case <-short:
		t.Fatal("fired before deadline")
	default:
	}

	clk.Advance(500 * time.Millisecond)
	select {
	case ts := <-short:
		assert.Equal(start.Add(time.Second), ts)
	default:
		t.Fatal("expected waiter to fire")
	}
	assert.Equal(1, clk.WaiterCount())

	clk.Set(start.Add(time.Hour))
	select {
	case <-long:
	default:
		t.Fatal("expected long waiter to fire")
	}
	assert.Equal(0, clk.WaiterCount())
}

func TestMockClockNonPositiveAfter(t *testing.T) {
	clk := NewMockClock(time.Unix(100, 0))
	select {
	case ts := <-clk.After(0):
		assert.Equal(t, time.Unix(100, 0), ts)
	default:
		t.Fatal("zero duration should fire immediately")
	}
	assert.Equal(t, 0, clk.WaiterCount())
}
