package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adboard/internal/apperr"
)

func TestMemoryWithinTxRollsBackOnlyItsOwnWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	owner := seededUser(t, store, "owner")
	iss := NewOpaqueIssuer(store, time.Minute)

	inside := make(chan struct{})
	release := make(chan struct{})
	failed := errors.New("abort")
	txDone := make(chan error, 1)
	go func() {
		txDone <- store.WithinTx(ctx, func(tx Repository) error {
			if _, err := tx.CreateUser(ctx, "doomed", "digest"); err != nil {
				return err
			}
			close(inside)
			<-release
			return failed
		})
	}()

	<-inside
	var (
		wg     sync.WaitGroup
		token  string
		issErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		token, issErr = iss.Issue(ctx, owner.ID)
	}()
	close(release)

	if err := <-txDone; !errors.Is(err, failed) {
		t.Fatalf("WithinTx = %v, want %v", err, failed)
	}
	wg.Wait()
	if issErr != nil {
		t.Fatalf("issue: %v", issErr)
	}

	if got, err := iss.Resolve(ctx, token); err != nil || got != owner.ID {
		t.Fatalf("token issued during a failed tx must survive: id=%d err=%v", got, err)
	}
	if _, err := store.UserByName(ctx, "doomed"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("failed tx write must be rolled back, got %v", err)
	}
}

func TestMemoryWithinTxCommits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	err := store.WithinTx(ctx, func(tx Repository) error {
		u, err := tx.CreateUser(ctx, "kept", "digest")
		if err != nil {
			return err
		}
		role, err := tx.CreateRole(ctx, "member")
		if err != nil {
			return err
		}
		// Nested transactions join the open one.
		return tx.WithinTx(ctx, func(inner Repository) error {
			return inner.AssignRoles(ctx, u.ID, role.ID)
		})
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	u, err := store.UserByName(ctx, "kept")
	if err != nil {
		t.Fatalf("committed user: %v", err)
	}
	full, err := store.UserByID(ctx, u.ID)
	if err != nil || len(full.Roles) != 1 || full.Roles[0].Name != "member" {
		t.Fatalf("committed roles: %+v err=%v", full, err)
	}
}

func TestRegisterConflictKeepsConcurrentLogins(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	env.register(t, "nina")

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens []string
	)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = env.svc.Register(ctx, "nina", "again")
		}()
		go func() {
			defer wg.Done()
			token, err := env.svc.Login(ctx, "nina", "nina-pass")
			if err != nil {
				t.Errorf("login: %v", err)
				return
			}
			mu.Lock()
			tokens = append(tokens, token)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(tokens) != 8 {
		t.Fatalf("expected 8 tokens, got %d", len(tokens))
	}
	for _, token := range tokens {
		if _, err := env.svc.Authenticate(ctx, token); err != nil {
			t.Fatalf("failed registrations must not drop tokens: %v", err)
		}
	}
}
