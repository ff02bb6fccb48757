package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"adboard/internal/apperr"
)

// Issuer creates bearer credentials for a user and resolves them back to the
// user id. Every credential lives for the same process-wide TTL.
type Issuer interface {
	Issue(ctx context.Context, userID int64) (string, error)
	Resolve(ctx context.Context, raw string) (int64, error)
}

// Revoker is implemented by issuers whose credentials can be withdrawn
// before they expire.
type Revoker interface {
	Revoke(ctx context.Context, raw string) error
}

// OpaqueIssuer hands out random UUIDs persisted in the token table.
type OpaqueIssuer struct {
	tokens TokenRepository
	ttl    time.Duration
	now    func() time.Time
}

func NewOpaqueIssuer(tokens TokenRepository, ttl time.Duration) *OpaqueIssuer {
	return &OpaqueIssuer{tokens: tokens, ttl: ttl, now: time.Now}
}

func (o *OpaqueIssuer) Issue(ctx context.Context, userID int64) (string, error) {
	t := &Token{
		Value:        uuid.NewString(),
		UserID:       userID,
		CreationTime: o.now().UTC(),
	}
	if err := o.tokens.CreateToken(ctx, t); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return t.Value, nil
}

func (o *OpaqueIssuer) Resolve(ctx context.Context, raw string) (int64, error) {
	if _, err := uuid.Parse(raw); err != nil {
		return 0, fmt.Errorf("%w: malformed token", apperr.ErrUnauthenticated)
	}
	t, err := o.tokens.TokenByValue(ctx, raw)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, fmt.Errorf("%w: unknown token", apperr.ErrUnauthenticated)
		}
		return 0, err
	}
	if !t.Valid(o.now(), o.ttl) {
		return 0, fmt.Errorf("%w: token expired", apperr.ErrUnauthenticated)
	}
	return t.UserID, nil
}

func (o *OpaqueIssuer) Revoke(ctx context.Context, raw string) error {
	if _, err := uuid.Parse(raw); err != nil {
		return fmt.Errorf("%w: malformed token", apperr.ErrUnauthenticated)
	}
	if err := o.tokens.DeleteToken(ctx, raw); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: unknown token", apperr.ErrUnauthenticated)
		}
		return err
	}
	return nil
}

// Sweep deletes tokens that can no longer resolve.
func (o *OpaqueIssuer) Sweep(ctx context.Context) (int64, error) {
	return o.tokens.DeleteTokensCreatedBefore(ctx, o.now().Add(-o.ttl))
}

// RunSweeper calls Sweep every interval until ctx is done.
func (o *OpaqueIssuer) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.Sweep(ctx)
			if err != nil {
				logger.Error("sweep expired tokens", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("expired tokens swept", "count", n)
			}
		}
	}
}

// SignedIssuer issues HS256 JWTs carrying the user id as subject. They are
// validated without a store lookup and cannot be revoked.
type SignedIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSignedIssuer(secret string, ttl time.Duration) *SignedIssuer {
	return &SignedIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// signedClaims carries the exact expiry in exp_ns. The registered exp claim
// only has whole seconds, so it is rounded up and never ends a token early.
type signedClaims struct {
	ExpiresAtNanos int64 `json:"exp_ns"`
	jwt.RegisteredClaims
}

func (s *SignedIssuer) Issue(ctx context.Context, userID int64) (string, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	expSeconds := exp.Truncate(time.Second)
	if expSeconds.Before(exp) {
		expSeconds = expSeconds.Add(time.Second)
	}
	claims := signedClaims{
		ExpiresAtNanos: exp.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expSeconds),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Resolve verifies the signature and expiry. Expiry is checked here rather
// than by the jwt parser so the boundary instant stays valid, matching
// OpaqueIssuer.
func (s *SignedIssuer) Resolve(ctx context.Context, raw string) (int64, error) {
	claims := &signedClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
	}
	if claims.ExpiresAtNanos == 0 {
		return 0, fmt.Errorf("%w: token has no expiry", apperr.ErrUnauthenticated)
	}
	if s.now().After(time.Unix(0, claims.ExpiresAtNanos)) {
		return 0, fmt.Errorf("%w: token expired", apperr.ErrUnauthenticated)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: bad subject", apperr.ErrUnauthenticated)
	}
	return userID, nil
}
