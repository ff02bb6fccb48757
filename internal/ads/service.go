package ads

import (
	"context"
	"log/slog"

	"adboard/internal/auth"
)

// Access is the part of auth.Evaluator the service needs.
type Access interface {
	CheckAccess(ctx context.Context, user *auth.User, model string, op auth.Operation, owner *int64) error
}

// Service gates advertisement writes on the caller's rights. Reads are
// public unless the service was built with WithReadChecks.
type Service struct {
	repo        Repository
	access      Access
	logger      *slog.Logger
	publicReads bool
}

type Option func(*Service)

// WithReadChecks makes Get and List require a read right on advertisements.
// An only-own read right limits Get to the caller's own ads.
func WithReadChecks() Option {
	return func(s *Service) { s.publicReads = false }
}

func NewService(repo Repository, access Access, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, access: access, logger: logger, publicReads: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublicReads reports whether anonymous callers may list and fetch ads.
func (s *Service) PublicReads() bool { return s.publicReads }

func (s *Service) Create(ctx context.Context, caller *auth.User, in Input) (*Advertisement, error) {
	if err := s.access.CheckAccess(ctx, caller, auth.ModelAdvertisement, auth.OpWrite, nil); err != nil {
		return nil, err
	}
	ad := &Advertisement{
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		AuthorID:    caller.ID,
	}
	if err := validate(ad); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, ad); err != nil {
		return nil, err
	}
	s.logger.Info("advertisement created", "ad_id", ad.ID, "author_id", ad.AuthorID)
	return ad, nil
}

// Get loads one advertisement. caller may be nil when reads are public.
func (s *Service) Get(ctx context.Context, caller *auth.User, id int64) (*Advertisement, error) {
	ad, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.publicReads {
		if err := s.access.CheckAccess(ctx, caller, auth.ModelAdvertisement, auth.OpRead, auth.Owner(ad.AuthorID)); err != nil {
			return nil, err
		}
	}
	return ad, nil
}

func (s *Service) List(ctx context.Context, caller *auth.User, f Filter) ([]Advertisement, error) {
	if !s.publicReads {
		if err := s.access.CheckAccess(ctx, caller, auth.ModelAdvertisement, auth.OpRead, nil); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, f)
}

// Update applies p to the advertisement. Unknown ids are reported before
// rights are checked.
func (s *Service) Update(ctx context.Context, caller *auth.User, id int64, p Patch) (*Advertisement, error) {
	return s.modify(ctx, caller, id, p.apply)
}

// Replace overwrites every editable field, clearing description when in has none.
func (s *Service) Replace(ctx context.Context, caller *auth.User, id int64, in Input) (*Advertisement, error) {
	return s.modify(ctx, caller, id, func(ad *Advertisement) {
		ad.Title = in.Title
		ad.Description = in.Description
		ad.Price = in.Price
	})
}

func (s *Service) modify(ctx context.Context, caller *auth.User, id int64, change func(*Advertisement)) (*Advertisement, error) {
	ad, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckAccess(ctx, caller, auth.ModelAdvertisement, auth.OpWrite, auth.Owner(ad.AuthorID)); err != nil {
		return nil, err
	}
	change(ad)
	if err := validate(ad); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, ad); err != nil {
		return nil, err
	}
	return ad, nil
}

func (s *Service) Delete(ctx context.Context, caller *auth.User, id int64) error {
	ad, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.access.CheckAccess(ctx, caller, auth.ModelAdvertisement, auth.OpWrite, auth.Owner(ad.AuthorID)); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("advertisement deleted", "ad_id", id, "by", caller.ID)
	return nil
}
