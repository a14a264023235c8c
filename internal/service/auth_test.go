package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/farm_dashboard/internal/backend"
	"github.com/Skotchmaster/farm_dashboard/internal/domain"
	"github.com/Skotchmaster/farm_dashboard/internal/events"
)

type fakeBackend struct {
	login    func(domain.Credentials) (*backend.LoginResponse, error)
	verify   func(domain.OTPSubmission) (*backend.SessionPayload, error)
	resend   func(string) (*backend.ResendResponse, error)
	register func(backend.RegisterRequest) error

	calls   atomic.Int32
	lastCtx context.Context
}

func (f *fakeBackend) Login(_ context.Context, c domain.Credentials) (*backend.LoginResponse, error) {
	f.calls.Add(1)
	return f.login(c)
}

func (f *fakeBackend) Verify(ctx context.Context, s domain.OTPSubmission) (*backend.SessionPayload, error) {
	f.calls.Add(1)
	f.lastCtx = ctx
	return f.verify(s)
}

func (f *fakeBackend) Resend(ctx context.Context, u string) (*backend.ResendResponse, error) {
	f.calls.Add(1)
	f.lastCtx = ctx
	return f.resend(u)
}

func (f *fakeBackend) Register(_ context.Context, r backend.RegisterRequest) error {
	f.calls.Add(1)
	return f.register(r)
}

type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	return nil
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.got))
	for _, e := range r.got {
		out = append(out, e.Type)
	}
	return out
}

func newService(b *fakeBackend) (*AuthService, *recorder) {
	rec := &recorder{}
	svc := NewAuthService(b, rec)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, rec
}

func sessionPayload(role string) *backend.SessionPayload {
	return &backend.SessionPayload{AccessToken: "tok-" + role, Roles: backend.FlexRole(role), User: "Jane"}
}

func TestSignIn_DirectSessionForAdmin(t *testing.T) {
	fb := &fakeBackend{login: func(domain.Credentials) (*backend.LoginResponse, error) {
		return &backend.LoginResponse{SessionPayload: *sessionPayload("admin")}, nil
	}}
	svc, rec := newService(fb)

	res, err := svc.SignIn(context.Background(), domain.Credentials{Username: " jane ", Password: "pass1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSession, res.Outcome)
	assert.Nil(t, res.Pending)
	require.NotNil(t, res.Session)
	assert.Equal(t, domain.RoleAdmin, res.Session.Identity.Role)
	assert.Equal(t, "/admin", res.Redirect)
	assert.Equal(t, []events.Type{events.LoginSuccess}, rec.types())
}

func TestSignIn_OTPRequired(t *testing.T) {
	fb := &fakeBackend{login: func(domain.Credentials) (*backend.LoginResponse, error) {
		return &backend.LoginResponse{Message: "OTP sent for verification", Email: "j***@farm.io"}, nil
	}}
	svc, _ := newService(fb)

	res, err := svc.SignIn(context.Background(), domain.Credentials{Username: "jane", Password: "pass1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOTPRequired, res.Outcome)
	assert.Nil(t, res.Session)
	require.NotNil(t, res.Pending)
	assert.Equal(t, "jane", res.Pending.Username)
	assert.Equal(t, "j***@farm.io", res.Pending.Email)
	assert.Equal(t, svc.now().Add(domain.PendingTTL), res.Pending.ExpiresAt)
	assert.Equal(t, "/otp", res.Redirect)
}

func TestSignIn_Failures(t *testing.T) {
	tests := []struct {
		name  string
		creds domain.Credentials
		resp  *backend.LoginResponse
		err   error
		kind  domain.ErrorKind
		msg   string
		calls int32
	}{
		{
			name:  "short password never reaches backend",
			creds: domain.Credentials{Username: "jane", Password: "abc"},
			kind:  domain.KindValidation,
			msg:   "Password must be at least 4 characters",
		},
		{
			name:  "bad credentials",
			creds: domain.Credentials{Username: "jane", Password: "wrong"},
			err:   domain.Classify(http.StatusUnauthorized, "nope"),
			kind:  domain.KindInvalidCredentials,
			msg:   "Invalid username or password. Please check and try again.",
			calls: 1,
		},
		{
			name:  "no response",
			creds: domain.Credentials{Username: "jane", Password: "pass1"},
			err:   &domain.AuthError{Kind: domain.KindNoResponse, Err: errors.New("dial tcp: refused")},
			kind:  domain.KindNoResponse,
			msg:   msgNoResponse,
			calls: 1,
		},
		{
			name:  "server message kept",
			creds: domain.Credentials{Username: "jane", Password: "pass1"},
			err:   domain.Classify(http.StatusInternalServerError, "database down"),
			kind:  domain.KindServer,
			msg:   "database down",
			calls: 1,
		},
		{
			name:  "neither token nor otp hint",
			creds: domain.Credentials{Username: "jane", Password: "pass1"},
			resp:  &backend.LoginResponse{Message: "welcome"},
			kind:  domain.KindMissingToken,
			msg:   msgMissingToken,
			calls: 1,
		},
		{
			name:  "token without role",
			creds: domain.Credentials{Username: "jane", Password: "pass1"},
			resp:  &backend.LoginResponse{SessionPayload: backend.SessionPayload{AccessToken: "tok"}},
			kind:  domain.KindMissingToken,
			calls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{login: func(domain.Credentials) (*backend.LoginResponse, error) {
				return tt.resp, tt.err
			}}
			svc, _ := newService(fb)

			res, err := svc.SignIn(context.Background(), tt.creds)
			require.Error(t, err)
			assert.Nil(t, res)

			var ae *domain.AuthError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.kind, ae.Kind)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, ae.Message)
			}
			assert.NotContains(t, ae.Message, "dial tcp")
			assert.Equal(t, tt.calls, fb.calls.Load())
		})
	}
}

func TestVerify_SuccessRoutesByRole(t *testing.T) {
	for role, landing := range map[string]string{"admin": "/admin", "feeder": "/dashboard", "manager": "/dashboard", "visitor": "/"} {
		fb := &fakeBackend{verify: func(s domain.OTPSubmission) (*backend.SessionPayload, error) {
			assert.Equal(t, "123456", s.Code)
			return sessionPayload(role), nil
		}}
		svc, rec := newService(fb)
		step := NewOTPStep()

		res, err := svc.Verify(context.Background(), step, domain.OTPSubmission{Username: "jane", Code: "123 456"})
		require.NoError(t, err, role)
		assert.Equal(t, landing, res.Redirect, role)
		assert.Equal(t, StateVerified, step.State())
		assert.Equal(t, []events.Type{events.OTPVerified}, rec.types())
	}
}

func TestVerify_InvalidCodeSkipsBackend(t *testing.T) {
	fb := &fakeBackend{}
	svc, _ := newService(fb)
	step := NewOTPStep()

	_, err := svc.Verify(context.Background(), step, domain.OTPSubmission{Username: "jane", Code: "12a456"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, int32(0), fb.calls.Load())
	assert.Equal(t, StateAwaitingIdentity, step.State())
}

func TestVerify_FailureMapping(t *testing.T) {
	tests := []struct {
		status int
		msg    string
	}{
		{http.StatusUnauthorized, "Invalid OTP or username. Please check and try again."},
		{http.StatusNotFound, "User not found. Please check your username."},
		{http.StatusGone, "OTP has expired. Please request a new one."},
	}

	for _, tt := range tests {
		fb := &fakeBackend{verify: func(domain.OTPSubmission) (*backend.SessionPayload, error) {
			return nil, domain.Classify(tt.status, "")
		}}
		svc, rec := newService(fb)
		step := NewOTPStep()

		_, err := svc.Verify(context.Background(), step, domain.OTPSubmission{Username: "jane", Code: "123456"})
		require.Error(t, err)
		var ae *domain.AuthError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, tt.msg, ae.Message)
		assert.Equal(t, StateAwaitingIdentity, step.State())
		assert.Equal(t, []events.Type{events.OTPFailed}, rec.types())
	}
}

func TestVerify_MissingToken(t *testing.T) {
	fb := &fakeBackend{verify: func(domain.OTPSubmission) (*backend.SessionPayload, error) {
		return &backend.SessionPayload{}, nil
	}}
	svc, _ := newService(fb)

	_, err := svc.Verify(context.Background(), NewOTPStep(), domain.OTPSubmission{Username: "jane", Code: "123456"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingToken)

	var ae *domain.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "No access token received", ae.Message)
}

func TestVerify_RejectsVerifiedStep(t *testing.T) {
	fb := &fakeBackend{}
	svc, _ := newService(fb)

	_, err := svc.Verify(context.Background(), RestoreOTPStep(false, true), domain.OTPSubmission{Username: "jane", Code: "123456"})
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.Equal(t, int32(0), fb.calls.Load())
}

func TestVerify_CollapsesConcurrentDuplicates(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	fb := &fakeBackend{verify: func(domain.OTPSubmission) (*backend.SessionPayload, error) {
		once.Do(func() { close(started) })
		<-release
		return sessionPayload("feeder"), nil
	}}
	svc, _ := newService(fb)
	sub := domain.OTPSubmission{Username: "jane", Code: "123456"}

	var wg sync.WaitGroup
	results := make([]*LoginResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Verify(context.Background(), NewOTPStep(), sub)
			assert.NoError(t, err)
			results[i] = res
		}(i)
		if i == 0 {
			<-started
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fb.calls.Load())
	assert.Same(t, results[0], results[1])
}

func TestVerify_SharedCallSurvivesFirstCallerCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var backendErr error

	fb := &fakeBackend{}
	fb.verify = func(domain.OTPSubmission) (*backend.SessionPayload, error) {
		once.Do(func() { close(started) })
		<-release
		backendErr = fb.lastCtx.Err()
		return sessionPayload("feeder"), nil
	}
	svc, _ := newService(fb)
	sub := domain.OTPSubmission{Username: "jane", Code: "123456"}

	firstCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var firstErr, secondErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, firstErr = svc.Verify(firstCtx, NewOTPStep(), sub)
	}()
	<-started
	go func() {
		defer wg.Done()
		_, secondErr = svc.Verify(context.Background(), NewOTPStep(), sub)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(release)
	wg.Wait()

	assert.NoError(t, backendErr)
	assert.NoError(t, firstErr)
	assert.NoError(t, secondErr)
	assert.Equal(t, int32(1), fb.calls.Load())
}

func TestResend_BackendIgnoresCallerCancel(t *testing.T) {
	fb := &fakeBackend{}
	fb.resend = func(string) (*backend.ResendResponse, error) {
		if err := fb.lastCtx.Err(); err != nil {
			return nil, err
		}
		return &backend.ResendResponse{Message: "sent again"}, nil
	}
	svc, _ := newService(fb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next, err := svc.Resend(ctx, NewOTPStep(), domain.PendingIdentity{Username: "jane", Message: "first"})
	require.NoError(t, err)
	assert.Equal(t, "sent again", next.Message)
}

func TestResend_KeepsUsername(t *testing.T) {
	fb := &fakeBackend{resend: func(u string) (*backend.ResendResponse, error) {
		assert.Equal(t, "jane", u)
		return &backend.ResendResponse{Message: "sent again", Email: "j***@farm.io"}, nil
	}}
	svc, rec := newService(fb)

	pending := domain.PendingIdentity{Username: "jane", Message: "first", ExpiresAt: time.Unix(0, 0)}
	next, err := svc.Resend(context.Background(), NewOTPStep(), pending)
	require.NoError(t, err)
	assert.Equal(t, "jane", next.Username)
	assert.Equal(t, "sent again", next.Message)
	assert.Equal(t, "j***@farm.io", next.Email)
	assert.Equal(t, svc.now().Add(domain.PendingTTL), next.ExpiresAt)
	assert.Equal(t, []events.Type{events.OTPResent}, rec.types())

	again, err := svc.Resend(context.Background(), NewOTPStep(), next)
	require.NoError(t, err)
	assert.Equal(t, next.Username, again.Username)
}

func TestResend_Failures(t *testing.T) {
	fb := &fakeBackend{resend: func(string) (*backend.ResendResponse, error) {
		return nil, domain.Classify(http.StatusBadGateway, "")
	}}
	svc, _ := newService(fb)
	pending := domain.PendingIdentity{Username: "jane", Message: "first"}

	next, err := svc.Resend(context.Background(), NewOTPStep(), pending)
	require.Error(t, err)
	var ae *domain.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, msgResendFailed, ae.Message)
	assert.Equal(t, pending, next)

	_, err = svc.Resend(context.Background(), RestoreOTPStep(false, true), pending)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.Equal(t, int32(1), fb.calls.Load())
}

func TestRegister(t *testing.T) {
	var got backend.RegisterRequest
	fb := &fakeBackend{register: func(r backend.RegisterRequest) error {
		got = r
		return nil
	}}
	svc, rec := newService(fb)

	err := svc.Register(context.Background(), domain.SignUp{Firstname: "Jane", Lastname: "Doe", Email: " jane@farm.io ", Password: "pass"})
	require.NoError(t, err)
	assert.Equal(t, backend.RegisterRequest{
		Username: "Jane Doe",
		Email:    "jane@farm.io",
		Password: "pass",
		Status:   "active",
		Role:     "feeder",
	}, got)
	assert.Equal(t, []events.Type{events.Registered}, rec.types())

	err = svc.Register(context.Background(), domain.SignUp{Firstname: "Jo"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, int32(1), fb.calls.Load())
}

func TestLogout_PublishesEvent(t *testing.T) {
	svc, rec := newService(&fakeBackend{})

	svc.Logout(events.WithRemoteIP(context.Background(), "10.0.0.1"), &domain.SessionIdentity{Name: "Jane", Role: domain.RoleAdmin})
	svc.Logout(context.Background(), nil)

	require.Len(t, rec.got, 2)
	assert.Equal(t, "Jane", rec.got[0].Username)
	assert.Equal(t, "10.0.0.1", rec.got[0].RemoteIP)
	assert.Empty(t, rec.got[1].Username)
}
