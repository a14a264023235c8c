package service

import (
	"errors"
	"sync"
)

type OTPState string

const (
	StateAwaitingIdentity OTPState = "awaiting_identity"
	StateVerifying        OTPState = "verifying"
	StateVerified         OTPState = "verified"
)

var (
	ErrAlreadyVerified   = errors.New("otp already verified")
	ErrInvalidTransition = errors.New("invalid otp step transition")
)

// OTPStep tracks one verification attempt:
//
//	awaiting_identity -> verifying -> verified
//	                        |
//	                        +-> awaiting_identity (failure)
type OTPStep struct {
	mu    sync.Mutex
	state OTPState
}

func NewOTPStep() *OTPStep {
	return &OTPStep{state: StateAwaitingIdentity}
}

// RestoreOTPStep rebuilds the step from what the browser holds. A session
// without a pending identity means verification already happened.
func RestoreOTPStep(hasPending, hasSession bool) *OTPStep {
	if hasSession && !hasPending {
		return &OTPStep{state: StateVerified}
	}
	return NewOTPStep()
}

func (s *OTPStep) State() OTPState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *OTPStep) Submit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateAwaitingIdentity:
		s.state = StateVerifying
		return nil
	case StateVerified:
		return ErrAlreadyVerified
	default:
		return ErrInvalidTransition
	}
}

func (s *OTPStep) Succeed() error {
	return s.finish(StateVerified)
}

func (s *OTPStep) Fail() error {
	return s.finish(StateAwaitingIdentity)
}

func (s *OTPStep) finish(next OTPState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateVerifying {
		return ErrInvalidTransition
	}
	s.state = next
	return nil
}

// CanResend allows a resend while awaiting or verifying, never after.
func (s *OTPStep) CanResend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateVerified {
		return ErrAlreadyVerified
	}
	return nil
}
