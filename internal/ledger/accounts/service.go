package accounts

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/fleetlease/fleetlease/internal/ledger/shared"
)

// CreateInput groups fields for account creation.
type CreateInput struct {
	Code        string
	Name        string
	Type        AccountType
	ParentID    *int64
	Active      bool
	Description string
}

// Validate ensures creation input meets minimum criteria.
func (in CreateInput) Validate() error {
	if in.Code == "" {
		return errors.New("ledger: account code required")
	}
	if in.Name == "" {
		return errors.New("ledger: account name required")
	}
	if !in.Type.Valid() {
		return fmt.Errorf("ledger: unknown account type %q", in.Type)
	}
	return nil
}

// Service handles chart-of-accounts business logic. There is no operation
// that sets a balance directly; balances move only through the ledger poster.
type Service struct {
	repo    Repository
	cache   *ListingCache
	listing singleflight.Group
}

func NewService(repo Repository, cache *ListingCache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Create registers a new account. The parent, when given, must already exist
// and the code must be unique.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	if in.ParentID != nil {
		if _, err := s.repo.Get(ctx, *in.ParentID); err != nil {
			if errors.Is(err, shared.ErrAccountNotFound) {
				return Account{}, shared.ErrParentNotFound
			}
			return Account{}, err
		}
	}
	account, err := s.repo.Create(ctx, in)
	if err != nil {
		return Account{}, err
	}
	s.invalidate(ctx)
	return account, nil
}

// AttachParent re-homes an account under a new parent. Only single-level
// parent pointers exist, so the cycle check reduces to rejecting self-reference.
func (s *Service) AttachParent(ctx context.Context, id int64, parentID int64) error {
	if id == parentID {
		return shared.ErrSelfParent
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if _, err := s.repo.Get(ctx, parentID); err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return shared.ErrParentNotFound
		}
		return err
	}
	if err := s.repo.SetParent(ctx, id, &parentID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// DetachParent promotes an account to a root account.
func (s *Service) DetachParent(ctx context.Context, id int64) error {
	if err := s.repo.SetParent(ctx, id, nil); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// List returns accounts matching the filter. Unfiltered listings are served
// from the redis cache when available.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	cacheable := filter == ListFilter{}
	if !cacheable {
		return s.repo.List(ctx, filter)
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx); ok {
			return cached, nil
		}
	}
	// Collapse concurrent rebuilds of the full listing into one query.
	v, err, _ := s.listing.Do(listingCacheKey, func() (any, error) {
		out, err := s.repo.List(ctx, ListFilter{})
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(ctx, out)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Account), nil
}

// Ancestors walks parent pointers from the account to its root, nearest first.
func (s *Service) Ancestors(ctx context.Context, id int64) ([]Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []Account
	for account.ParentID != nil {
		parent, err := s.repo.Get(ctx, *account.ParentID)
		if err != nil {
			return nil, err
		}
		out = append(out, parent)
		account = parent
	}
	return out, nil
}

// Descendants collects the subtree below the account, breadth first.
func (s *Service) Descendants(ctx context.Context, id int64) ([]Account, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	var out []Account
	frontier := []int64{id}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		children, err := s.repo.ListByParent(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			out = append(out, child)
			frontier = append(frontier, child.ID)
		}
	}
	return out, nil
}

// Balance returns the stored running balance for the account.
func (s *Service) Balance(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// Deactivate flags the account inactive without touching history.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Activate re-enables a deactivated account.
func (s *Service) Activate(ctx context.Context, id int64) error {
	if err := s.repo.SetActive(ctx, id, true); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// InvalidateListing drops the cached listing. The ledger poster calls this
// after balances change.
func (s *Service) InvalidateListing(ctx context.Context) {
	s.invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}
