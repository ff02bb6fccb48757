package auth

import (
	"context"
	"fmt"
	"log/slog"

	"adboard/internal/apperr"
)

// Evaluator decides whether a user may read or write a resource kind.
// Rights are loaded from the source on every call and never cached.
type Evaluator struct {
	rights RightsSource
	logger *slog.Logger
}

func NewEvaluator(rights RightsSource, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{rights: rights, logger: logger}
}

// HasAccess reports whether user holds a right for op on model. A nil owner
// means the resource has no owner and only-own rights apply unconditionally.
func (e *Evaluator) HasAccess(ctx context.Context, user *User, model string, op Operation, owner *int64) (bool, error) {
	if user == nil {
		return false, apperr.ErrUnauthenticated
	}
	rights, err := e.rights.RightsForUser(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("load rights for user %d: %w", user.ID, err)
	}
	return Permits(rights, user.ID, model, op, owner), nil
}

// CheckAccess is HasAccess returning apperr.ErrAccessDenied on denial.
func (e *Evaluator) CheckAccess(ctx context.Context, user *User, model string, op Operation, owner *int64) error {
	ok, err := e.HasAccess(ctx, user, model, op, owner)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Debug("access denied", "user_id", user.ID, "model", model, "op", op, "owner", ownerAttr(owner))
		return fmt.Errorf("%s %s: %w", op, model, apperr.ErrAccessDenied)
	}
	return nil
}

// Permits reports whether any right in rights grants op on model to userID.
// There is no deny rule; the order of rights does not matter.
func Permits(rights []Right, userID int64, model string, op Operation, owner *int64) bool {
	foreign := owner != nil && *owner != userID
	for _, r := range rights {
		if r.Model != model {
			continue
		}
		switch op {
		case OpRead:
			if !r.Read {
				continue
			}
		case OpWrite:
			if !r.Write {
				continue
			}
		default:
			continue
		}
		if foreign && r.OnlyOwn {
			continue
		}
		return true
	}
	return false
}

func ownerAttr(owner *int64) any {
	if owner == nil {
		return nil
	}
	return *owner
}
