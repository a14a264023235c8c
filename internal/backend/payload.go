package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/farm_dashboard/internal/domain"
)

// FlexInt accepts a JSON number, a numeric string or null.
type FlexInt struct {
	Value int64
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = FlexInt{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = FlexInt{}
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("flexint: %w", err)
		}
		*f = FlexInt{Value: n, Valid: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		fl, ferr := n.Float64()
		if ferr != nil {
			return fmt.Errorf("flexint: %w", err)
		}
		v = int64(fl)
	}
	*f = FlexInt{Value: v, Valid: true}
	return nil
}

func (f FlexInt) Ptr() *int64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// FlexRole accepts either "admin" or ["admin", ...]; the first entry wins.
type FlexRole string

func (r *FlexRole) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if b[0] == '[' {
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		if len(list) > 0 {
			*r = FlexRole(list[0])
		} else {
			*r = ""
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = FlexRole(s)
	return nil
}

// SessionPayload is the body returned by a successful direct login, OTP
// verification or refresh.
type SessionPayload struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	Roles        FlexRole `json:"roles"`
	Role         FlexRole `json:"role"`
	User         string   `json:"user"`
	UserID       FlexInt  `json:"user_id"`
	LocationID   FlexInt  `json:"location_id"`
	LocationName *string  `json:"location_name"`
}

func (p SessionPayload) role() domain.Role {
	if p.Roles != "" {
		return domain.ParseRole(string(p.Roles))
	}
	return domain.ParseRole(string(p.Role))
}

// Session validates the payload and turns it into a session. fallbackName
// is used when the backend omits the display name.
func (p SessionPayload) Session(fallbackName string, now time.Time) (domain.Session, error) {
	token := strings.TrimSpace(p.AccessToken)
	if token == "" {
		return domain.Session{}, domain.NewError(domain.KindMissingToken, "No access token received")
	}
	role := p.role()
	if role == "" {
		return domain.Session{}, domain.NewError(domain.KindMissingToken, "No role received with the access token")
	}
	name := strings.TrimSpace(p.User)
	if name == "" {
		name = strings.TrimSpace(fallbackName)
	}
	return domain.Session{
		Identity: domain.SessionIdentity{
			UserID:       p.UserID.Value,
			Name:         name,
			Role:         role,
			LocationID:   p.LocationID.Ptr(),
			LocationName: nonEmpty(p.LocationName),
		},
		Token: domain.NewAccessToken(token, now),
	}, nil
}

type LoginResponse struct {
	SessionPayload
	Message string `json:"message"`
	Email   string `json:"email"`
}

// NeedsOTP reports whether the body signals a verification step rather
// than a direct session.
func (r LoginResponse) NeedsOTP() bool {
	if strings.TrimSpace(r.AccessToken) != "" {
		return false
	}
	if r.Email != "" {
		return true
	}
	msg := strings.ToLower(r.Message)
	for _, hint := range []string{"verification", "verify", "otp", "code"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

type ResendResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// MeResponse tolerates the field spellings the backend has used for the
// current user.
type MeResponse struct {
	ID           FlexInt  `json:"id"`
	UserID       FlexInt  `json:"user_id"`
	User         string   `json:"user"`
	Username     string   `json:"username"`
	Name         string   `json:"name"`
	Role         FlexRole `json:"role"`
	Roles        FlexRole `json:"roles"`
	LocationID   FlexInt  `json:"location_id"`
	LocationName *string  `json:"location_name"`
}

func (m MeResponse) Identity() (domain.SessionIdentity, error) {
	id := m.ID
	if !id.Valid {
		id = m.UserID
	}
	role := domain.ParseRole(string(m.Role))
	if role == "" {
		role = domain.ParseRole(string(m.Roles))
	}
	if role == "" {
		return domain.SessionIdentity{}, domain.NewError(domain.KindValidation, "current user has no role")
	}
	name := firstNonEmpty(m.User, m.Username, m.Name)
	return domain.SessionIdentity{
		UserID:       id.Value,
		Name:         name,
		Role:         role,
		LocationID:   m.LocationID.Ptr(),
		LocationName: nonEmpty(m.LocationName),
	}, nil
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Status   string `json:"status"`
	Role     string `json:"role"`
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
