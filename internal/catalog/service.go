package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/maxnotes/storefront/internal/cache"
	"github.com/maxnotes/storefront/internal/common"
)

// ErrNotFound is wrapped by errors returned for unknown product ids.
var ErrNotFound = errors.New("catalog: product not found")

const snapshotKey = "snapshot"

// Service loads, validates, caches and queries the catalog.
type Service struct {
	source   Source
	fallback Source
	cache    *cache.JSON
	validate *validator.Validate
	bundleID string
	logger   zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source Source
	// Fallback is served when Source fails. It is never cached so recovery of the primary
	// source is picked up on the next request.
	Fallback Source
	Cache    *cache.JSON
	Validate *validator.Validate
	// BundleID optionally designates which product id is the full-access bundle.
	BundleID string
	Logger   zerolog.Logger
}

// ListParams captures filters for product listing.
type ListParams struct {
	Filter string
	Query  string
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	validate := cfg.Validate
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Service{
		source:   cfg.Source,
		fallback: cfg.Fallback,
		cache:    cfg.Cache,
		validate: validate,
		bundleID: strings.TrimSpace(cfg.BundleID),
		logger:   cfg.Logger,
	}, nil
}

// Snapshot returns the current catalog, preferring the Redis copy.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	key := s.cache.Key(snapshotKey)
	var snap Snapshot
	hit, err := s.cache.GetJSON(ctx, key, &snap)
	if err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache read failed")
	}
	if hit {
		return snap, nil
	}

	snap, err = s.load(ctx, s.source)
	if err != nil {
		if s.fallback == nil {
			return Snapshot{}, err
		}
		s.logger.Warn().Err(err).Msg("catalog source failed, serving fallback")
		return s.load(ctx, s.fallback)
	}
	if err := s.cache.SetJSON(ctx, key, snap); err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache write failed")
	}
	return snap, nil
}

// Refresh drops the cached snapshot and reloads it from the source.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	if err := s.cache.Delete(ctx, s.cache.Key(snapshotKey)); err != nil {
		return Snapshot{}, fmt.Errorf("catalog: invalidate cache: %w", err)
	}
	return s.Snapshot(ctx)
}

// List returns products matching the filter category and the case-insensitive name/code query.
func (s *Service) List(ctx context.Context, params ListParams) ([]Product, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	filter := strings.TrimSpace(params.Filter)
	if filter != "" && filter != FilterAll && !IsFilter(filter) {
		return nil, &common.AppError{
			Code:       "INVALID_FILTER",
			Message:    "unknown filter category",
			HTTPStatus: http.StatusBadRequest,
			Details:    map[string]any{"filter": filter, "allowed": Filters()},
		}
	}
	out := make([]Product, 0, len(snap.Products))
	for _, p := range snap.Products {
		if filter != "" && filter != FilterAll && p.FilterCategory != filter {
			continue
		}
		if !p.Matches(params.Query) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Get returns a product or the bundle by id.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Product{}, err
	}
	p, ok := snap.Find(strings.TrimSpace(id))
	if !ok {
		return Product{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: ErrNotFound}
	}
	return p, nil
}

// Bundle returns the full-access bundle or nil when the catalog has none.
func (s *Service) Bundle(ctx context.Context) (*Product, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Bundle, nil
}

// BundleID returns the bundle product id, empty when no bundle is configured.
func (s *Service) BundleID(ctx context.Context) (string, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.BundleID(), nil
}

// ByIDs resolves ids in the given order, skipping unknown and duplicate ids.
func (s *Service) ByIDs(ctx context.Context, ids []string) ([]Product, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := snap.Find(id); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, src Source) (Snapshot, error) {
	snap, err := src.Load(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap = s.applyBundle(snap)
	if snap.Bundle == nil {
		snap = withDefaultBundle(snap)
	}
	if err := s.check(snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Service) applyBundle(snap Snapshot) Snapshot {
	if s.bundleID == "" || snap.BundleID() == s.bundleID {
		return snap
	}
	for i, p := range snap.Products {
		if p.ID != s.bundleID {
			continue
		}
		bundle := p
		rest := make([]Product, 0, len(snap.Products)-1)
		rest = append(rest, snap.Products[:i]...)
		rest = append(rest, snap.Products[i+1:]...)
		return Snapshot{Products: rest, Bundle: &bundle}
	}
	s.logger.Warn().Str("bundle_id", s.bundleID).Msg("configured bundle product not in catalog")
	return snap
}

func (s *Service) check(snap Snapshot) error {
	if err := s.validate.Struct(snap); err != nil {
		return fmt.Errorf("catalog: invalid products: %w", err)
	}
	seen := make(map[string]struct{}, len(snap.Products)+1)
	if snap.Bundle != nil {
		seen[snap.Bundle.ID] = struct{}{}
	}
	for _, p := range snap.Products {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("catalog: duplicate product id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}
