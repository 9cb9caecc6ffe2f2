package domain

import "time"

// Role is the authorization tier derived for an authenticated caller.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Claim is the identity asserted by a verified session token.
type Claim struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
