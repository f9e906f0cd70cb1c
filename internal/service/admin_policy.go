package service

import (
	"strings"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
)

// AdminPolicy decides who holds admin capability: the admin role, or a teacher whose
// email is listed as an admin alias in configuration.
type AdminPolicy struct {
	aliases map[string]struct{}
}

// NewAdminPolicy builds the policy from configured alias emails (case-insensitive).
func NewAdminPolicy(aliases []string) *AdminPolicy {
	set := make(map[string]struct{}, len(aliases))
	for _, alias := range aliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias != "" {
			set[alias] = struct{}{}
		}
	}
	return &AdminPolicy{aliases: set}
}

// IsAdmin reports whether the actor may act as an admin.
func (p *AdminPolicy) IsAdmin(actor models.Actor) bool {
	if actor.Role == models.RoleAdmin {
		return true
	}
	if p == nil || actor.Role != models.RoleTeacher {
		return false
	}
	_, ok := p.aliases[strings.ToLower(strings.TrimSpace(actor.Email))]
	return ok
}

// AliasEmails returns the configured alias addresses.
func (p *AdminPolicy) AliasEmails() []string {
	if p == nil {
		return nil
	}
	emails := make([]string, 0, len(p.aliases))
	for email := range p.aliases {
		emails = append(emails, email)
	}
	return emails
}
