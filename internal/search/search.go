package search

import (
	"context"
	"strings"

	"github.com/maxnotes/storefront/internal/catalog"
)

// Searcher maps a free-text query to catalog product ids. Implementations return an empty
// result instead of an error when the lookup cannot be performed.
type Searcher interface {
	Search(ctx context.Context, query string) []string
}

// Disabled is the Searcher used when no AI backend is configured.
type Disabled struct{}

// Search always returns nil.
func (Disabled) Search(context.Context, string) []string { return nil }

// Catalog is the catalog surface search relies on.
type Catalog interface {
	Snapshot(ctx context.Context) (catalog.Snapshot, error)
	List(ctx context.Context, params catalog.ListParams) ([]catalog.Product, error)
	ByIDs(ctx context.Context, ids []string) ([]catalog.Product, error)
}

func normaliseQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
