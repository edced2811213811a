package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreditLifecycleTransitions(t *testing.T) {
	sm := NewCreditLifecycle()

	assert.True(t, sm.CanTransition("MINTED", "TRADED"))
	assert.True(t, sm.CanTransition("MINTED", "RETIRED"))
	assert.True(t, sm.CanTransition("TRADED", "TRADED"))
	assert.True(t, sm.CanTransition("TRADED", "RETIRED"))

	// Retirement is terminal.
	assert.False(t, sm.CanTransition("RETIRED", "TRADED"))
	assert.False(t, sm.CanTransition("RETIRED", "RETIRED"))
	assert.Empty(t, sm.GetAllowedTransitions("RETIRED"))

	assert.False(t, sm.CanTransition("UNKNOWN", "TRADED"))
}
