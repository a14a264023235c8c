package domain

import "strings"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFeeder  Role = "feeder"
	RoleManager Role = "manager"
)

const (
	RouteHome      = "/"
	RouteAdmin     = "/admin"
	RouteDashboard = "/dashboard"
	RouteSignIn    = "/sign-in"
	RouteOTP       = "/otp"
)

func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

func (r Role) Known() bool {
	switch r {
	case RoleAdmin, RoleFeeder, RoleManager:
		return true
	}
	return false
}

// Landing is the area a signed-in user of this role is sent to.
func (r Role) Landing() string {
	switch r {
	case RoleAdmin:
		return RouteAdmin
	case RoleFeeder, RoleManager:
		return RouteDashboard
	default:
		return RouteHome
	}
}
