package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	sess, err := Issue("admin", RoleAdmin, "shiftboard", "test-key", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if sess.ExpiresAt.Before(time.Now()) {
		t.Fatalf("session already expired at %v", sess.ExpiresAt)
	}

	claims, err := Parse(sess.Token, "test-key", "shiftboard")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "admin" || claims.Role != RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	sess, err := Issue("admin", RoleAdmin, "shiftboard", "test-key", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(sess.Token, "other-key", "shiftboard"); err == nil {
		t.Fatal("expected signature failure")
	}
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	sess, err := Issue("admin", RoleAdmin, "someone-else", "test-key", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(sess.Token, "test-key", "shiftboard"); err == nil {
		t.Fatal("expected issuer mismatch")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	sess, err := Issue("admin", RoleAdmin, "shiftboard", "test-key", -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(sess.Token, "test-key", "shiftboard"); err == nil {
		t.Fatal("expected expiry failure")
	}
}
