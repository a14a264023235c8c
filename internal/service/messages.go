package service

import (
	"errors"

	"github.com/Skotchmaster/farm_dashboard/internal/domain"
)

const (
	msgNoResponse   = "Server not responding. Please check your connection and try again."
	msgNotFound     = "User not found. Please check your username."
	msgMissingToken = "No access token received"
	msgResendFailed = "Failed to resend OTP. Please try again later."
)

var signInMessages = map[domain.ErrorKind]string{
	domain.KindInvalidCredentials: "Invalid username or password. Please check and try again.",
	domain.KindNotFound:           msgNotFound,
	domain.KindExpired:            "Your sign-in request has expired. Please try again.",
	domain.KindNoResponse:         msgNoResponse,
	domain.KindServer:             "Login failed. Please try again.",
	domain.KindMissingToken:       msgMissingToken,
}

var verifyMessages = map[domain.ErrorKind]string{
	domain.KindInvalidCredentials: "Invalid OTP or username. Please check and try again.",
	domain.KindNotFound:           msgNotFound,
	domain.KindExpired:            "OTP has expired. Please request a new one.",
	domain.KindNoResponse:         msgNoResponse,
	domain.KindServer:             "Verification failed. Please try again.",
	domain.KindMissingToken:       msgMissingToken,
}

var resendMessages = map[domain.ErrorKind]string{
	domain.KindNoResponse: msgNoResponse,
	domain.KindNotFound:   msgNotFound,
}

var registerMessages = map[domain.ErrorKind]string{
	domain.KindNoResponse: msgNoResponse,
	domain.KindServer:     "Error signing up. Please try again.",
}

// userFacing turns err into an AuthError whose message is safe for the
// inline banner. Validation messages and server-provided text on generic
// server errors pass through; everything else comes from the table.
func userFacing(err error, table map[domain.ErrorKind]string, fallback string) *domain.AuthError {
	var ae *domain.AuthError
	if !errors.As(err, &ae) {
		ae = &domain.AuthError{Kind: domain.KindOf(err), Err: err}
	}

	out := &domain.AuthError{Kind: ae.Kind, Status: ae.Status, Err: err}
	switch {
	case ae.Kind == domain.KindValidation && ae.Message != "":
		out.Message = ae.Message
	case ae.Kind == domain.KindServer && ae.Message != "":
		out.Message = ae.Message
	case ae.Kind == domain.KindMissingToken && ae.Message != "":
		out.Message = ae.Message
	default:
		if msg, ok := table[ae.Kind]; ok {
			out.Message = msg
		} else {
			out.Message = fallback
		}
	}
	return out
}
