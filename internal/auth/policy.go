package auth

import (
	"strings"

	"github.com/ticketflow/helpdesk/internal/domain"
)

// AuthorizationPolicy answers the single question "is this user an admin".
// It checks the configured email allow-list first and falls back to the
// persisted per-user flag, so callers never branch on the mechanism.
type AuthorizationPolicy struct {
	allowList map[string]struct{}
}

// NewAuthorizationPolicy builds a policy from the configured admin emails.
func NewAuthorizationPolicy(adminEmails []string) *AuthorizationPolicy {
	allowList := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			allowList[email] = struct{}{}
		}
	}
	return &AuthorizationPolicy{allowList: allowList}
}

// IsAdmin reports whether the user may manage any ticket.
func (p *AuthorizationPolicy) IsAdmin(user *domain.User) bool {
	if user == nil {
		return false
	}
	if _, ok := p.allowList[strings.ToLower(user.Email)]; ok {
		return true
	}
	return user.IsAdmin
}

// Actor resolves the user into the actor identity ticket operations expect.
func (p *AuthorizationPolicy) Actor(user *domain.User) domain.Actor {
	return domain.Actor{
		UserID:    user.ID,
		UserName:  user.Name,
		UserEmail: user.Email,
		IsAdmin:   p.IsAdmin(user),
	}
}
