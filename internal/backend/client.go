package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Skotchmaster/farm_dashboard/internal/coops"
	"github.com/Skotchmaster/farm_dashboard/internal/domain"
)

const (
	DefaultTimeout = 30 * time.Second

	RefreshCookieName = "refresh_token"

	maxBody = 1 << 20
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Username string `json:"username"`
	OTP      string `json:"otp,omitempty"`
}

func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*LoginResponse, error) {
	var out LoginResponse
	body := loginRequest{Username: creds.Username, Password: creds.Password}
	if err := c.do(ctx, http.MethodPost, "/login", body, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Verify(ctx context.Context, sub domain.OTPSubmission) (*SessionPayload, error) {
	var out SessionPayload
	body := verifyRequest{Username: sub.Username, OTP: sub.Code}
	if err := c.do(ctx, http.MethodPost, "/verify", body, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resend asks the backend for a fresh code. It shares the verify endpoint;
// a body without an otp is a resend request.
func (c *Client) Resend(ctx context.Context, username string) (*ResendResponse, error) {
	var out ResendResponse
	if err := c.do(ctx, http.MethodPost, "/verify", verifyRequest{Username: username}, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context, token string) (*MeResponse, error) {
	var out MeResponse
	if err := c.do(ctx, http.MethodGet, "/me", nil, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*SessionPayload, error) {
	var out SessionPayload
	cookies := []*http.Cookie{{Name: RefreshCookieName, Value: refreshToken}}
	if err := c.do(ctx, http.MethodGet, "/refresh", nil, "", cookies, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/register", req, "", nil, nil)
}

func (c *Client) Coops(ctx context.Context, token string) ([]coops.Record, error) {
	var out []coops.Record
	if err := c.do(ctx, http.MethodGet, "/coops", nil, token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, token string, cookies []*http.Cookie, out any) error {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.AuthError{Kind: domain.KindNoResponse, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &domain.AuthError{Kind: domain.KindNoResponse, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Classify(resp.StatusCode, serverMessage(body))
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.AuthError{
			Kind:   domain.KindServer,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// serverMessage pulls a human-readable reason out of an error body.
func serverMessage(body []byte) string {
	var m struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	if m.Message != "" {
		return m.Message
	}
	if len(m.Detail) > 0 {
		var s string
		if json.Unmarshal(m.Detail, &s) == nil {
			return s
		}
	}
	return m.Error
}

// IsUnauthorized reports whether err came from a backend 401.
func IsUnauthorized(err error) bool {
	var ae *domain.AuthError
	return errors.As(err, &ae) && ae.Status == http.StatusUnauthorized
}
