package identity

import (
	"strings"
	"time"
)

// RoleType represents an employee's role within the organisation.
type RoleType string

const (
	RoleEmployee RoleType = "employee" // Regular employee, default for unenriched identities
	RoleManager  RoleType = "manager"  // Can approve leave, tickets and attendance corrections
	RoleAdmin    RoleType = "admin"    // HR/system administrator
)

// ParseRole maps a raw role claim to a RoleType, defaulting to RoleEmployee
// for unknown or empty values.
func ParseRole(raw string) RoleType {
	switch RoleType(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleManager:
		return RoleManager
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleEmployee
	}
}

// Identity is the resolved, enriched representation of the authenticated
// subject. It is an immutable value: the coordinator replaces it wholesale,
// never mutates it in place.
type Identity struct {
	ID          string            `json:"id"`                     // Stable external subject identifier
	Email       string            `json:"email,omitempty"`        // Subject's email address
	DisplayName string            `json:"display_name,omitempty"` // Name shown in the app
	Role        RoleType          `json:"role"`                   // Employee role
	Department  string            `json:"department,omitempty"`   // Department name
	Extra       map[string]string `json:"extra,omitempty"`        // Opaque profile fields
}

// Same reports whether two identities are "the same identity" for
// subscription purposes. Only ID and Role participate: a display-name or
// department change must not force a subscription rebuild.
func (id Identity) Same(other Identity) bool {
	return id.ID == other.ID && id.Role == other.Role
}

// RawSession is the unenriched session handed over by the identity provider.
// It carries just enough to start profile resolution.
type RawSession struct {
	Subject    string    // Stable subject identifier (the provider's "sub")
	Email      string    // Email claim, may be empty
	Role       string    // Raw role claim from the access token, may be empty
	Department string    // Department claim from the access token, may be empty
	ExpiresAt  time.Time // Access token expiry, zero if unknown
}

// Minimal builds the degraded fallback Identity from the raw session alone:
// subject id, email-derived display name, and whatever token claims the
// provider surfaced. An authenticated but unenriched identity is preferable
// to dropping the user to unauthenticated.
func (rs RawSession) Minimal() Identity {
	return Identity{
		ID:          rs.Subject,
		Email:       rs.Email,
		DisplayName: displayNameFromEmail(rs.Email),
		Role:        ParseRole(rs.Role),
		Department:  rs.Department,
	}
}

func displayNameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return ""
	}
	return local
}
