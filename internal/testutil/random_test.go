package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScriptedSource_ReplaysAndWraps(t *testing.T) {
	src := NewScriptedSource(0.1, 0.7)

	got := []float64{src.Next(), src.Next(), src.Next()}
	assert.Equal(t, []float64{0.1, 0.7, 0.1}, got)
	assert.Equal(t, 3, src.Calls())
}

func TestScriptedSource_EmptyYieldsZero(t *testing.T) {
	src := NewScriptedSource()
	assert.Equal(t, 0.0, src.Next())
	assert.Equal(t, 1, src.Calls())
}
