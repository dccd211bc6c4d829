package profiles

import (
	"time"

	"github.com/attendhq/go-session-coordinator/identity"
)

// Profile is the HR-side record for an employee, keyed by the identity
// provider's subject id. It enriches a raw session into a full Identity.
type Profile struct {
	SubjectID  string            `json:"subject_id"`           // Identity provider subject id
	Email      string            `json:"email,omitempty"`      // Work email address
	FullName   string            `json:"full_name,omitempty"`  // Display name
	Role       identity.RoleType `json:"role,omitempty"`       // Employee role
	Department string            `json:"department,omitempty"` // Department name
	Extra      map[string]string `json:"extra,omitempty"`      // Additional profile fields
	UpdatedAt  time.Time         `json:"updated_at,omitempty"` // Last modification time
}

// Identity converts the profile into an Identity value, falling back to the
// raw session's fields for anything the profile leaves blank.
func (p *Profile) Identity(raw identity.RawSession) identity.Identity {
	id := raw.Minimal()
	id.ID = p.SubjectID
	if p.Email != "" {
		id.Email = p.Email
	}
	if p.FullName != "" {
		id.DisplayName = p.FullName
	}
	if p.Role != "" {
		id.Role = p.Role
	}
	if p.Department != "" {
		id.Department = p.Department
	}
	if len(p.Extra) > 0 {
		id.Extra = p.Extra
	}
	return id
}

// Merge copies non-empty fields from richer into the profile, preferring the
// richer record. Used for the best-effort secondary-store merge during
// resolution; absence of a richer record is not an error.
func (p *Profile) Merge(richer *Profile) {
	if richer == nil {
		return
	}
	if richer.FullName != "" {
		p.FullName = richer.FullName
	}
	if richer.Role != "" {
		p.Role = richer.Role
	}
	if richer.Department != "" {
		p.Department = richer.Department
	}
	if len(richer.Extra) > 0 {
		if p.Extra == nil {
			p.Extra = make(map[string]string, len(richer.Extra))
		}
		for k, v := range richer.Extra {
			p.Extra[k] = v
		}
	}
}
