package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockNowLocal(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().Add(-time.Second)
	got := clk.Now()
	after := time.Now().Add(time.Second)

	assert.Equal(t, time.Local, got.Location())
	assert.True(t, got.After(before) && got.Before(after))
}

func TestFixed(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	clk := Fixed(at)
	assert.Equal(t, at, clk.Now())
	assert.Equal(t, clk.Now(), clk.Now())
}
