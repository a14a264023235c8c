package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/farm_dashboard/internal/backend"
	"github.com/Skotchmaster/farm_dashboard/internal/domain"
	"github.com/Skotchmaster/farm_dashboard/internal/events"
	"github.com/Skotchmaster/farm_dashboard/internal/logging"
)

type Outcome string

const (
	OutcomeSession     Outcome = "session_established"
	OutcomeOTPRequired Outcome = "otp_required"
)

// Backend is the slice of the backend API the auth flow talks to.
type Backend interface {
	Login(ctx context.Context, creds domain.Credentials) (*backend.LoginResponse, error)
	Verify(ctx context.Context, sub domain.OTPSubmission) (*backend.SessionPayload, error)
	Resend(ctx context.Context, username string) (*backend.ResendResponse, error)
	Register(ctx context.Context, req backend.RegisterRequest) error
}

type LoginResult struct {
	Outcome      Outcome
	Pending      *domain.PendingIdentity
	Session      *domain.Session
	RefreshToken string
	Redirect     string
}

type AuthService struct {
	Backend Backend
	Events  events.Publisher

	now   func() time.Time
	group singleflight.Group
}

func NewAuthService(b Backend, pub events.Publisher) *AuthService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &AuthService{Backend: b, Events: pub, now: time.Now}
}

func (s *AuthService) publish(ctx context.Context, e events.Event) {
	e.RemoteIP = events.RemoteIPFrom(ctx)
	if err := s.Events.Publish(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", e.Type, "error", err)
	}
}

// SignIn exchanges credentials for either a session or a pending identity
// that has to pass the OTP step.
func (s *AuthService) SignIn(ctx context.Context, creds domain.Credentials) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.sign_in")

	creds.Username = strings.TrimSpace(creds.Username)
	if err := creds.Validate(); err != nil {
		return nil, userFacing(err, signInMessages, "")
	}

	resp, err := s.Backend.Login(ctx, creds)
	if err != nil {
		ue := userFacing(err, signInMessages, signInMessages[domain.KindServer])
		l.Warn("login_failed", "status", ue.Status, "reason", string(ue.Kind), "error", err)
		s.publish(ctx, events.New(events.LoginFailed, creds.Username).WithReason(string(ue.Kind)))
		return nil, ue
	}

	now := s.now()
	if strings.TrimSpace(resp.AccessToken) != "" {
		sess, err := resp.Session(creds.Username, now)
		if err != nil {
			ue := userFacing(err, signInMessages, msgMissingToken)
			l.Warn("login_failed", "status", 200, "reason", string(ue.Kind))
			s.publish(ctx, events.New(events.LoginFailed, creds.Username).WithReason(string(ue.Kind)))
			return nil, ue
		}
		l.Info("login_success", "role", sess.Identity.Role)
		s.publish(ctx, events.New(events.LoginSuccess, creds.Username).WithRole(string(sess.Identity.Role)))
		return &LoginResult{
			Outcome:      OutcomeSession,
			Session:      &sess,
			RefreshToken: resp.RefreshToken,
			Redirect:     sess.Identity.Role.Landing(),
		}, nil
	}

	if resp.NeedsOTP() {
		username := strings.TrimSpace(resp.User)
		if username == "" {
			username = creds.Username
		}
		pending := domain.PendingIdentity{
			Username:  username,
			Message:   resp.Message,
			Email:     resp.Email,
			ExpiresAt: now.Add(domain.PendingTTL),
		}
		l.Info("login_otp_required")
		s.publish(ctx, events.New(events.OTPRequired, username))
		return &LoginResult{
			Outcome:  OutcomeOTPRequired,
			Pending:  &pending,
			Redirect: domain.RouteOTP,
		}, nil
	}

	l.Warn("login_failed", "status", 200, "reason", string(domain.KindMissingToken))
	s.publish(ctx, events.New(events.LoginFailed, creds.Username).WithReason(string(domain.KindMissingToken)))
	return nil, &domain.AuthError{Kind: domain.KindMissingToken, Message: msgMissingToken}
}

// Verify submits an OTP. Concurrent identical submissions share one backend
// call. On failure the step returns to awaiting_identity so the user can
// retry or resend.
func (s *AuthService) Verify(ctx context.Context, step *OTPStep, sub domain.OTPSubmission) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.verify")

	sub = sub.Normalized()
	if err := sub.Validate(); err != nil {
		return nil, userFacing(err, verifyMessages, "")
	}
	if err := step.Submit(); err != nil {
		return nil, err
	}

	// Duplicates wait on the first caller's call, so it must outlive that
	// caller's cancellation.
	v, err, shared := s.group.Do("verify:"+sub.Username+":"+sub.Code, func() (any, error) {
		return s.verify(context.WithoutCancel(ctx), sub)
	})
	if err != nil {
		_ = step.Fail()
		var ue *domain.AuthError
		if !errors.As(err, &ue) {
			ue = userFacing(err, verifyMessages, verifyMessages[domain.KindServer])
		}
		l.Warn("verify_failed", "status", ue.Status, "reason", string(ue.Kind), "shared", shared)
		return nil, ue
	}
	_ = step.Succeed()
	return v.(*LoginResult), nil
}

func (s *AuthService) verify(ctx context.Context, sub domain.OTPSubmission) (*LoginResult, error) {
	payload, err := s.Backend.Verify(ctx, sub)
	if err != nil {
		ue := userFacing(err, verifyMessages, verifyMessages[domain.KindServer])
		s.publish(ctx, events.New(events.OTPFailed, sub.Username).WithReason(string(ue.Kind)))
		return nil, ue
	}

	sess, err := payload.Session(sub.Username, s.now())
	if err != nil {
		ue := userFacing(err, verifyMessages, msgMissingToken)
		s.publish(ctx, events.New(events.OTPFailed, sub.Username).WithReason(string(ue.Kind)))
		return nil, ue
	}

	logging.FromContext(ctx).Info("verify_success", "svc", "auth.verify", "role", sess.Identity.Role)
	s.publish(ctx, events.New(events.OTPVerified, sub.Username).WithRole(string(sess.Identity.Role)))
	return &LoginResult{
		Outcome:      OutcomeSession,
		Session:      &sess,
		RefreshToken: payload.RefreshToken,
		Redirect:     sess.Identity.Role.Landing(),
	}, nil
}

// Resend asks for a new code and returns the refreshed pending identity.
// Only message, email and expiry change; the username never does.
func (s *AuthService) Resend(ctx context.Context, step *OTPStep, pending domain.PendingIdentity) (domain.PendingIdentity, error) {
	l := logging.FromContext(ctx).With("svc", "auth.resend")

	if err := step.CanResend(); err != nil {
		return pending, err
	}
	username := strings.TrimSpace(pending.Username)
	if username == "" {
		return pending, domain.Validation("Username is required")
	}

	v, err, _ := s.group.Do("resend:"+username, func() (any, error) {
		return s.Backend.Resend(context.WithoutCancel(ctx), username)
	})
	if err != nil {
		ue := userFacing(err, resendMessages, msgResendFailed)
		l.Warn("resend_failed", "status", ue.Status, "reason", string(ue.Kind))
		return pending, ue
	}

	resp := v.(*backend.ResendResponse)
	next := pending
	if resp.Message != "" {
		next.Message = resp.Message
	}
	if resp.Email != "" {
		next.Email = resp.Email
	}
	next.ExpiresAt = s.now().Add(domain.PendingTTL)

	l.Info("resend_success")
	s.publish(ctx, events.New(events.OTPResent, username))
	return next, nil
}

// Register creates a feeder account from the sign-up form.
func (s *AuthService) Register(ctx context.Context, form domain.SignUp) error {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if err := form.Validate(); err != nil {
		return userFacing(err, registerMessages, "")
	}

	username := form.Username()
	err := s.Backend.Register(ctx, backend.RegisterRequest{
		Username: username,
		Email:    strings.TrimSpace(form.Email),
		Password: form.Password,
		Status:   domain.DefaultSignUpStatus,
		Role:     string(domain.DefaultSignUpRole),
	})
	if err != nil {
		ue := userFacing(err, registerMessages, registerMessages[domain.KindServer])
		l.Error("register_error", "status", ue.Status, "reason", string(ue.Kind), "error", err)
		return ue
	}

	l.Info("register_success")
	s.publish(ctx, events.New(events.Registered, username).WithRole(string(domain.DefaultSignUpRole)))
	return nil
}

// Logout records the sign-out; the caller clears the store.
func (s *AuthService) Logout(ctx context.Context, identity *domain.SessionIdentity) {
	var e events.Event
	if identity != nil {
		e = events.New(events.Logout, identity.Name).WithRole(string(identity.Role))
	} else {
		e = events.New(events.Logout, "")
	}
	s.publish(ctx, e)
}
