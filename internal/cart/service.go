package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maxnotes/storefront/internal/catalog"
	"github.com/maxnotes/storefront/internal/lock"
)

// ErrNotFound indicates the requested cart could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrUnknownProduct is returned when adding a product the catalog does not know.
var ErrUnknownProduct = errors.New("product not found")

// ProductLookup resolves catalog products by id.
type ProductLookup interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
}

// Service encapsulates cart domain operations. Carts live in Redis as JSON documents whose
// TTL is refreshed on every write.
type Service struct {
	R       *redis.Client
	Catalog ProductLookup
	Locker  lock.Locker
	TTL     time.Duration
	Now     func() time.Time
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func key(id string) string { return "cart:" + id }

// Create stores a new empty cart.
func (s *Service) Create(ctx context.Context) (Cart, error) {
	if s == nil || s.R == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	now := s.now()
	c := Cart{ID: uuid.NewString(), Items: []Item{}, CreatedAt: now, UpdatedAt: now}
	if err := s.save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Get loads a cart by id.
func (s *Service) Get(ctx context.Context, id string) (Cart, error) {
	if s == nil || s.R == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	id, err := parseID(id)
	if err != nil {
		return Cart{}, err
	}
	return s.load(ctx, id)
}

// AddProduct adds one unit of productID, incrementing the quantity when the line exists.
func (s *Service) AddProduct(ctx context.Context, cartID, productID string) (Cart, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: productId is required", ErrInvalidInput)
	}
	if s.Catalog == nil {
		return Cart{}, errors.New("cart catalog not configured")
	}
	product, err := s.Catalog.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Cart{}, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
		}
		return Cart{}, err
	}
	return s.mutate(ctx, cartID, func(c *Cart) error {
		c.add(product)
		return nil
	})
}

// Remove deletes the whole line for productID.
func (s *Service) Remove(ctx context.Context, cartID, productID string) (Cart, error) {
	return s.mutate(ctx, cartID, func(c *Cart) error {
		if !c.remove(strings.TrimSpace(productID)) {
			return fmt.Errorf("%w: item %s not in cart", ErrNotFound, productID)
		}
		return nil
	})
}

// Clear empties the cart while keeping its id.
func (s *Service) Clear(ctx context.Context, cartID string) (Cart, error) {
	return s.mutate(ctx, cartID, func(c *Cart) error {
		c.Items = []Item{}
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, cartID string, fn func(*Cart) error) (Cart, error) {
	if s == nil || s.R == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	id, err := parseID(cartID)
	if err != nil {
		return Cart{}, err
	}
	var out Cart
	err = s.Locker.WithLock(ctx, key(id), 5*time.Second, func(ctx context.Context) error {
		c, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		if err := s.save(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Cart{}, err
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, id string) (Cart, error) {
	raw, err := s.R.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.R.Set(ctx, key(c.ID), raw, s.ttl()).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func parseID(value string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("%w: invalid cart id", ErrInvalidInput)
	}
	return id.String(), nil
}
