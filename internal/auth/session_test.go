package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, clock func() time.Time) *SessionManager {
	t.Helper()
	manager, err := NewSessionManager(SessionManagerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "pixel-defence-auth",
		Audience:      "pixel-defence-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to build session manager: %v", err)
	}
	return manager
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	manager := newTestManager(t, nil)

	token, expiresIn, err := manager.IssueSessionToken("alice", false)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn != int64(time.Hour.Seconds()) {
		t.Fatalf("expected expiry of %d seconds, got %d", int64(time.Hour.Seconds()), expiresIn)
	}

	session, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if session.Username != "alice" {
		t.Fatalf("expected username alice, got %q", session.Username)
	}
	if session.Moderator {
		t.Fatal("expected non-moderator session")
	}
}

func TestModeratorClaimSurvivesRoundTrip(t *testing.T) {
	manager := newTestManager(t, nil)

	token, _, err := manager.IssueSessionToken("mod-user", true)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	session, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if !session.Moderator {
		t.Fatal("expected moderator flag to survive")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	manager := newTestManager(t, clock)

	token, _, err := manager.IssueSessionToken("alice", false)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	now = now.Add(time.Hour + time.Minute)
	if _, err := manager.ValidateToken(token); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected ErrExpiredSessionToken, got %v", err)
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	manager := newTestManager(t, nil)
	other, err := NewSessionManager(SessionManagerConfig{
		SigningSecret: []byte("different-secret"),
		Issuer:        "pixel-defence-auth",
		Audience:      "pixel-defence-api",
	})
	if err != nil {
		t.Fatalf("failed to build second manager: %v", err)
	}

	token, _, err := other.IssueSessionToken("alice", false)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if _, err := manager.ValidateToken(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected ErrInvalidSessionToken, got %v", err)
	}
}

func TestIssueRejectsBlankUsername(t *testing.T) {
	manager := newTestManager(t, nil)
	if _, _, err := manager.IssueSessionToken("   ", false); !errors.Is(err, ErrMissingUsername) {
		t.Fatalf("expected ErrMissingUsername, got %v", err)
	}
}

func TestNewSessionManagerRequiresSecret(t *testing.T) {
	if _, err := NewSessionManager(SessionManagerConfig{}); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected ErrMissingSigningSecret, got %v", err)
	}
}
