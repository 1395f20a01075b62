package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(StateInitializing, StateHoming))
	assert.NoError(t, ValidateTransition(StateHoming, StateRunning))
	assert.NoError(t, ValidateTransition(StateRunning, StateStopping))
	assert.NoError(t, ValidateTransition(StateError, StateStopping))

	assert.Error(t, ValidateTransition(StateInitializing, StateRunning))
	assert.Error(t, ValidateTransition(StateStopped, StateRunning))
	assert.Error(t, ValidateTransition(SystemState(42), StateRunning))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "HOMING", StateHoming.String())
	assert.Equal(t, "UNKNOWN", SystemState(42).String())
}
