package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTPStep_Transitions(t *testing.T) {
	t.Parallel()

	s := NewOTPStep()
	assert.Equal(t, StateAwaitingIdentity, s.State())
	assert.ErrorIs(t, s.Succeed(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Fail(), ErrInvalidTransition)

	require.NoError(t, s.Submit())
	assert.Equal(t, StateVerifying, s.State())
	assert.ErrorIs(t, s.Submit(), ErrInvalidTransition)
	assert.NoError(t, s.CanResend())

	require.NoError(t, s.Fail())
	assert.Equal(t, StateAwaitingIdentity, s.State())
	assert.NoError(t, s.CanResend())

	require.NoError(t, s.Submit())
	require.NoError(t, s.Succeed())
	assert.Equal(t, StateVerified, s.State())
	assert.ErrorIs(t, s.CanResend(), ErrAlreadyVerified)
	assert.ErrorIs(t, s.Submit(), ErrAlreadyVerified)
}

func TestRestoreOTPStep(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StateVerified, RestoreOTPStep(false, true).State())
	assert.Equal(t, StateAwaitingIdentity, RestoreOTPStep(true, true).State())
	assert.Equal(t, StateAwaitingIdentity, RestoreOTPStep(true, false).State())
	assert.Equal(t, StateAwaitingIdentity, RestoreOTPStep(false, false).State())
}
