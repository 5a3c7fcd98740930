package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackCounterApproximatesByCharacterCount(t *testing.T) {
	c := fallbackCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("hi"))
	assert.Equal(t, 5, c.Count("twenty character text"[:20]))
}

func TestNewReturnsAUsableCounter(t *testing.T) {
	c := New()
	n := c.Count("the quick brown fox jumps over the lazy dog")
	assert.Greater(t, n, 0)
}

func TestDefaultIsStableAcrossCalls(t *testing.T) {
	a := Default()
	b := Default()
	assert.Equal(t, a.Count("same text"), b.Count("same text"))
}
