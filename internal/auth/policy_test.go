package auth

import (
	"testing"

	"github.com/ticketflow/helpdesk/internal/domain"
)

func TestIsAdminAllowList(t *testing.T) {
	policy := NewAuthorizationPolicy([]string{" Boss@Example.com ", "ops@example.com"})

	if !policy.IsAdmin(&domain.User{Email: "boss@example.com"}) {
		t.Fatal("allow-listed email must be admin regardless of case")
	}
	if policy.IsAdmin(&domain.User{Email: "user@example.com"}) {
		t.Fatal("unlisted user without flag must not be admin")
	}
}

func TestIsAdminPersistedFlagFallback(t *testing.T) {
	policy := NewAuthorizationPolicy(nil)

	if !policy.IsAdmin(&domain.User{Email: "user@example.com", IsAdmin: true}) {
		t.Fatal("persisted flag must grant admin")
	}
	if policy.IsAdmin(nil) {
		t.Fatal("nil user is never admin")
	}
}

func TestActorCarriesAdminDecision(t *testing.T) {
	policy := NewAuthorizationPolicy([]string{"boss@example.com"})
	actor := policy.Actor(&domain.User{ID: "u-1", Name: "Boss", Email: "boss@example.com"})

	if !actor.IsAdmin || actor.UserID != "u-1" || actor.UserEmail != "boss@example.com" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}
