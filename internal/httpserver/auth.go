package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farm_dashboard/internal/domain"
	"github.com/Skotchmaster/farm_dashboard/internal/logging"
	"github.com/Skotchmaster/farm_dashboard/internal/service"
	"github.com/Skotchmaster/farm_dashboard/internal/session"
)

const (
	msgPendingMissing = "Some verification data might be missing. Please sign in again if you did not receive a code."
	msgPendingExpired = "Your verification session has expired. Please sign in again."
	msgRegistered     = "Account created. You can sign in now."
	msgResent         = "A new code has been sent."
)

type AuthHTTP struct {
	Svc   *service.AuthService
	Store session.Store
}

// statusFor is the response code used when a form is re-rendered with an
// error banner.
func statusFor(err error) int {
	var ae *domain.AuthError
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindInvalidCredentials:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindExpired:
		return http.StatusGone
	case domain.KindNoResponse:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func bannerFor(err error) string {
	var ae *domain.AuthError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return "An unexpected error occurred"
}

func (h *AuthHTTP) establish(c echo.Context, res *service.LoginResult) error {
	l := logging.FromContext(c.Request().Context())
	if err := h.Store.Set(c, *res.Session); err != nil {
		l.Error("session_write_failed", "error", err)
	}
	h.Store.SetRefreshCredential(c, res.RefreshToken)
	h.Store.ClearPending(c)
	return c.Redirect(http.StatusSeeOther, res.Redirect)
}

func (h *AuthHTTP) SignInPage(c echo.Context) error {
	v := newView(c, "Sign in")
	if c.QueryParam("registered") == "1" {
		v.Notice = msgRegistered
	}
	return c.Render(http.StatusOK, "sign_in.html", v)
}

func (h *AuthHTTP) SignIn(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.sign_in")

	creds := domain.Credentials{
		Username: strings.TrimSpace(c.FormValue("username")),
		Password: c.FormValue("password"),
	}
	if creds.Username == "" && (c.FormValue("firstname") != "" || c.FormValue("lastname") != "") {
		creds = domain.CredentialsFromNames(c.FormValue("firstname"), c.FormValue("lastname"), creds.Password)
	}

	res, err := h.Svc.SignIn(ctx, creds)
	if err != nil {
		v := newView(c, "Sign in")
		v.Error = bannerFor(err)
		v.Form["username"] = creds.Username
		return c.Render(statusFor(err), "sign_in.html", v)
	}

	if res.Outcome == service.OutcomeOTPRequired {
		if err := h.Store.SetPending(c, *res.Pending); err != nil {
			l.Error("pending_write_failed", "error", err)
		}
		return c.Redirect(http.StatusSeeOther, res.Redirect)
	}
	return h.establish(c, res)
}

func (h *AuthHTTP) SignUpPage(c echo.Context) error {
	return c.Render(http.StatusOK, "sign_up.html", newView(c, "Sign up"))
}

func (h *AuthHTTP) SignUp(c echo.Context) error {
	form := domain.SignUp{
		Firstname: c.FormValue("firstname"),
		Lastname:  c.FormValue("lastname"),
		Email:     c.FormValue("email"),
		Password:  c.FormValue("password"),
	}

	if err := h.Svc.Register(c.Request().Context(), form); err != nil {
		v := newView(c, "Sign up")
		v.Error = bannerFor(err)
		v.Form["firstname"] = form.Firstname
		v.Form["lastname"] = form.Lastname
		v.Form["email"] = form.Email
		return c.Render(statusFor(err), "sign_up.html", v)
	}
	return c.Redirect(http.StatusSeeOther, domain.RouteSignIn+"?registered=1")
}

func (h *AuthHTTP) otpView(c echo.Context, pending *domain.PendingIdentity, username string) view {
	v := newView(c, "Verify")
	v.Data = pending
	if pending != nil {
		v.Form["username"] = pending.Username
		v.Form["locked"] = "1"
		if pending.Incomplete() {
			v.Warning = msgPendingMissing
		}
	} else {
		v.Form["username"] = username
		v.Warning = msgPendingMissing
	}
	return v
}

func (h *AuthHTTP) OTPPage(c echo.Context) error {
	pending, _ := h.Store.ReadPending(c)
	return c.Render(http.StatusOK, "otp.html", h.otpView(c, pending, ""))
}

func (h *AuthHTTP) VerifyOTP(c echo.Context) error {
	ctx := c.Request().Context()

	pending, _ := h.Store.ReadPending(c)
	sess, _ := h.Store.Read(c)

	sub := domain.OTPSubmission{Username: c.FormValue("username"), Code: c.FormValue("otp")}
	if pending != nil {
		sub.Username = pending.Username
	}

	step := service.RestoreOTPStep(pending != nil, sess != nil)
	res, err := h.Svc.Verify(ctx, step, sub)
	if errors.Is(err, service.ErrAlreadyVerified) {
		return c.Redirect(http.StatusSeeOther, sess.Identity.Role.Landing())
	}
	if err != nil {
		v := h.otpView(c, pending, strings.TrimSpace(sub.Username))
		v.Error = bannerFor(err)
		return c.Render(statusFor(err), "otp.html", v)
	}
	return h.establish(c, res)
}

func (h *AuthHTTP) ResendOTP(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.resend")

	pending, _ := h.Store.ReadPending(c)
	sess, _ := h.Store.Read(c)
	step := service.RestoreOTPStep(pending != nil, sess != nil)

	if err := step.CanResend(); err != nil {
		return c.Redirect(http.StatusSeeOther, sess.Identity.Role.Landing())
	}
	if pending == nil {
		v := h.otpView(c, nil, "")
		v.Warning = ""
		v.Error = msgPendingExpired
		return c.Render(http.StatusGone, "otp.html", v)
	}

	next, err := h.Svc.Resend(ctx, step, *pending)
	if err != nil {
		v := h.otpView(c, pending, "")
		v.Error = bannerFor(err)
		return c.Render(statusFor(err), "otp.html", v)
	}
	if err := h.Store.SetPending(c, next); err != nil {
		l.Error("pending_write_failed", "error", err)
	}

	v := h.otpView(c, &next, "")
	v.Notice = msgResent
	return c.Render(http.StatusOK, "otp.html", v)
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	var identity *domain.SessionIdentity
	if sess, _ := h.Store.Read(c); sess != nil {
		identity = &sess.Identity
	}
	h.Svc.Logout(c.Request().Context(), identity)
	h.Store.Clear(c)
	return c.Redirect(http.StatusSeeOther, domain.RouteSignIn)
}
