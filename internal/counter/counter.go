package counter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/maxnotes/storefront/internal/common"
)

// DefaultKey stores the students-helped total.
const DefaultKey = "stats:students_helped"

// Service is the students-helped counter. The stored value starts at Seed the first time it
// is touched.
type Service struct {
	R    *redis.Client
	Key  string
	Seed int64
}

func (s *Service) key() string {
	if s.Key == "" {
		return DefaultKey
	}
	return s.Key
}

// Value returns the current total.
func (s *Service) Value(ctx context.Context) (int64, error) {
	return s.Add(ctx, 0)
}

// Add increments the total by n and returns the new value.
func (s *Service) Add(ctx context.Context, n int64) (int64, error) {
	if s == nil || s.R == nil {
		return 0, errors.New("counter: redis client not configured")
	}
	if n < 0 {
		return 0, fmt.Errorf("counter: negative increment %d", n)
	}
	var incr *redis.IntCmd
	_, err := s.R.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, s.key(), s.Seed, 0)
		incr = p.IncrBy(ctx, s.key(), n)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counter: %w", err)
	}
	return incr.Val(), nil
}

// Handler serves public storefront statistics.
type Handler struct {
	Svc *Service
}

// Stats returns the students-helped figure.
func (h Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "counter not configured", nil)
		return
	}
	v, err := h.Svc.Value(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]int64{"studentsHelped": v})
}
