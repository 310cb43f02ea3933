package store

import (
	"testing"
	"time"
)

func TestJWTSessionRoundTrip(t *testing.T) {
	s, err := NewJWTSessionStore("test-secret", time.Minute, nil)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok {
		t.Fatalf("get user id: ok=%v err=%v", ok, err)
	}
	if userID != "user-1" {
		t.Fatalf("user id = %q, want %q", userID, "user-1")
	}
}

func TestJWTSessionRejectsWrongSecret(t *testing.T) {
	issuer, err := NewJWTSessionStore("secret-a", time.Minute, nil)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	verifier, err := NewJWTSessionStore("secret-b", time.Minute, nil)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	token, err := issuer.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := verifier.GetUserIDByToken(token); ok || err == nil {
		t.Fatalf("expected verification to fail with a different secret")
	}
}

func TestJWTSessionRejectsExpiredToken(t *testing.T) {
	s, err := NewJWTSessionStore("test-secret", time.Minute, nil)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	// Issue a token that expired beyond the verification leeway.
	s.ttl = -2 * time.Minute
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	s.ttl = time.Minute
	if _, ok, err := s.GetUserIDByToken(token); ok || err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestJWTSessionRejectsGarbage(t *testing.T) {
	s, err := NewJWTSessionStore("test-secret", time.Minute, nil)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	for _, token := range []string{"", "   ", "not.a.jwt"} {
		if _, ok, err := s.GetUserIDByToken(token); ok || err == nil {
			t.Fatalf("expected token %q to be rejected", token)
		}
	}
}

func TestJWTSessionDeleteRevokesToken(t *testing.T) {
	s, err := NewJWTSessionStore("test-secret", time.Minute, NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); ok || err == nil {
		t.Fatalf("expected revoked token to be rejected")
	}
}

func TestJWTSessionRequiresSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("  ", time.Minute, nil); err == nil {
		t.Fatalf("expected constructor error for empty secret")
	}
}
