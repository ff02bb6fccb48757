package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"adboard/internal/apperr"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func seededUser(t *testing.T, store *MemoryStore, name string) *User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), name, "digest")
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func TestTokenValidBoundary(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := Token{CreationTime: created}
	ttl := time.Minute
	if !tok.Valid(created, ttl) {
		t.Fatalf("fresh token must be valid")
	}
	if !tok.Valid(created.Add(ttl), ttl) {
		t.Fatalf("token must be valid exactly at ttl")
	}
	if tok.Valid(created.Add(ttl+time.Nanosecond), ttl) {
		t.Fatalf("token must be invalid just after ttl")
	}
}

func TestOpaqueIssuerRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	u := seededUser(t, store, "alice")
	clock := newClock()
	iss := NewOpaqueIssuer(store, time.Minute)
	iss.now = clock.Now

	raw, err := iss.Issue(ctx, u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := iss.Resolve(ctx, raw)
	if err != nil || got != u.ID {
		t.Fatalf("resolve: got %d, %v", got, err)
	}

	clock.Advance(time.Minute)
	if _, err := iss.Resolve(ctx, raw); err != nil {
		t.Fatalf("resolve at ttl boundary: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := iss.Resolve(ctx, raw); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("resolve after ttl: got %v, want unauthenticated", err)
	}
}

func TestOpaqueIssuerRejectsUnknownAndMalformed(t *testing.T) {
	ctx := context.Background()
	iss := NewOpaqueIssuer(NewMemoryStore(), time.Minute)
	for _, raw := range []string{"", "not-a-uuid", "3b241101-e2bb-4255-8caf-4136c566a962"} {
		if _, err := iss.Resolve(ctx, raw); !errors.Is(err, apperr.ErrUnauthenticated) {
			t.Errorf("resolve %q: got %v", raw, err)
		}
	}
}

func TestOpaqueIssuerRevoke(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	u := seededUser(t, store, "bob")
	iss := NewOpaqueIssuer(store, time.Hour)

	raw, err := iss.Issue(ctx, u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := iss.Revoke(ctx, raw); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := iss.Resolve(ctx, raw); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("resolve revoked: got %v", err)
	}
	if err := iss.Revoke(ctx, raw); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("second revoke: got %v", err)
	}
}

func TestOpaqueIssuerIssuesDistinctTokens(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	u := seededUser(t, store, "carol")
	iss := NewOpaqueIssuer(store, time.Hour)
	a, _ := iss.Issue(ctx, u.ID)
	b, _ := iss.Issue(ctx, u.ID)
	if a == b {
		t.Fatalf("each login must get a new token")
	}
}

func TestOpaqueIssuerSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	u := seededUser(t, store, "dave")
	clock := newClock()
	iss := NewOpaqueIssuer(store, time.Minute)
	iss.now = clock.Now

	old, _ := iss.Issue(ctx, u.ID)
	clock.Advance(2 * time.Minute)
	fresh, _ := iss.Issue(ctx, u.ID)

	n, err := iss.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
	if _, err := store.TokenByValue(ctx, old); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expired token should be gone: %v", err)
	}
	if _, err := iss.Resolve(ctx, fresh); err != nil {
		t.Fatalf("fresh token should survive: %v", err)
	}
}

func TestSignedIssuerRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	iss := NewSignedIssuer("test-secret", time.Minute)
	iss.now = clock.Now

	raw, err := iss.Issue(ctx, 42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := iss.Resolve(ctx, raw)
	if err != nil || got != 42 {
		t.Fatalf("resolve: got %d, %v", got, err)
	}

	clock.Advance(time.Minute)
	if _, err := iss.Resolve(ctx, raw); err != nil {
		t.Fatalf("resolve at ttl boundary: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := iss.Resolve(ctx, raw); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("resolve after ttl: got %v", err)
	}
}

func TestSignedIssuerSubSecondBoundary(t *testing.T) {
	ctx := context.Background()
	for _, issued := range []time.Time{
		time.Date(2026, 3, 1, 12, 0, 0, 700_000_000, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 0, 123_456_789, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 0, 999_999_999, time.UTC),
	} {
		clock := &fakeClock{t: issued}
		iss := NewSignedIssuer("test-secret", time.Minute)
		iss.now = clock.Now

		raw, err := iss.Issue(ctx, 7)
		if err != nil {
			t.Fatalf("issue at %s: %v", issued.Format(time.RFC3339Nano), err)
		}
		clock.Advance(time.Minute)
		if got, err := iss.Resolve(ctx, raw); err != nil || got != 7 {
			t.Fatalf("issued at %s: must resolve exactly at ttl, got %d, %v", issued.Format(time.RFC3339Nano), got, err)
		}
		clock.Advance(time.Nanosecond)
		if _, err := iss.Resolve(ctx, raw); !errors.Is(err, apperr.ErrUnauthenticated) {
			t.Fatalf("issued at %s: must fail just after ttl, got %v", issued.Format(time.RFC3339Nano), err)
		}
	}
}

func TestSignedIssuerRegisteredExpiryRoundsUp(t *testing.T) {
	ctx := context.Background()
	issued := time.Date(2026, 3, 1, 12, 0, 0, 700_000_000, time.UTC)
	iss := NewSignedIssuer("test-secret", time.Minute)
	iss.now = (&fakeClock{t: issued}).Now
	raw, err := iss.Issue(ctx, 7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims := &signedClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 1, 1, 0, time.UTC)
	if !claims.ExpiresAt.Time.Equal(want) {
		t.Fatalf("exp = %s, want %s", claims.ExpiresAt.Time, want)
	}
	if claims.ExpiresAtNanos != issued.Add(time.Minute).UnixNano() {
		t.Fatalf("exp_ns = %d", claims.ExpiresAtNanos)
	}
}

func TestSignedIssuerRejectsForeignSignature(t *testing.T) {
	ctx := context.Background()
	other := NewSignedIssuer("other-secret", time.Minute)
	raw, err := other.Issue(ctx, 1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	iss := NewSignedIssuer("test-secret", time.Minute)
	if _, err := iss.Resolve(ctx, raw); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("foreign signature: got %v", err)
	}
}

func TestSignedIssuerRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	iss := NewSignedIssuer("test-secret", time.Minute)
	cases := []string{"", "abc", "a.b.c"}

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "1"}).
		SignedString([]byte("test-secret"))
	secondsOnly, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	badSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, signedClaims{
		ExpiresAtNanos: time.Now().Add(time.Hour).UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	cases = append(cases, noExp, secondsOnly, badSub, none)

	for _, raw := range cases {
		_, err := iss.Resolve(ctx, raw)
		if !errors.Is(err, apperr.ErrUnauthenticated) {
			t.Errorf("resolve %q: got %v", strings.TrimSpace(raw), err)
		}
	}
}

func TestSignedIssuerIsNotRevoker(t *testing.T) {
	var iss Issuer = NewSignedIssuer("s", time.Minute)
	if _, ok := iss.(Revoker); ok {
		t.Fatalf("signed tokens must not advertise revocation")
	}
	var opaque Issuer = NewOpaqueIssuer(NewMemoryStore(), time.Minute)
	if _, ok := opaque.(Revoker); !ok {
		t.Fatalf("opaque tokens must be revocable")
	}
}
