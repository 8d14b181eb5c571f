package agreement

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_CanAdvanceTo(t *testing.T) {
	require.True(t, StatusUninitialized.CanAdvanceTo(StatusCreated))
	require.False(t, StatusUninitialized.CanAdvanceTo(StatusUninitialized))
	require.True(t, StatusCreated.CanAdvanceTo(StatusSecurityDeposited))
	require.False(t, StatusCreated.CanAdvanceTo(StatusActive))
	require.True(t, StatusSecurityDeposited.CanAdvanceTo(StatusCompleted))
	require.True(t, StatusActive.CanAdvanceTo(StatusActive))
	require.False(t, StatusActive.CanAdvanceTo(StatusSecurityDeposited))
	for _, next := range []Status{StatusCreated, StatusActive, StatusCompleted, StatusTerminated} {
		require.False(t, StatusCompleted.CanAdvanceTo(next))
		require.False(t, StatusTerminated.CanAdvanceTo(next))
	}
}

func TestGuard(t *testing.T) {
	for _, instruction := range Instructions {
		require.ErrorIs(t, Guard(instruction, StatusCompleted), ErrWrongStatus, instruction)
		require.ErrorIs(t, Guard(instruction, StatusTerminated), ErrWrongStatus, instruction)
	}
	require.NoError(t, Guard(InstructionInitialize, StatusUninitialized))
	require.NoError(t, Guard(InstructionTerminate, StatusCreated))
	require.ErrorIs(t, Guard(InstructionPayRent, StatusCreated), ErrWrongStatus)
}

func TestStatus_JSON(t *testing.T) {
	raw, err := json.Marshal(StatusSecurityDeposited)
	require.NoError(t, err)
	require.JSONEq(t, `"security_deposited"`, string(raw))

	var s Status
	require.NoError(t, json.Unmarshal([]byte(`"active"`), &s))
	require.Equal(t, StatusActive, s)
	require.Error(t, json.Unmarshal([]byte(`"paused"`), &s))
}
