package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/maxnotes/storefront/internal/cache"
	"github.com/maxnotes/storefront/internal/catalog"
	"github.com/maxnotes/storefront/internal/common"
	"github.com/maxnotes/storefront/internal/obs"
	"github.com/maxnotes/storefront/internal/resilience"
)

// ErrNoAPIKey is returned by NewGemini when no API key is configured.
var ErrNoAPIKey = errors.New("search: gemini api key not configured")

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the Gemini-backed searcher.
type GeminiConfig struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Catalog    Catalog
	Breaker    *resilience.Breaker
	Cache      *cache.JSON
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// Gemini asks a Gemini model which catalog products match a query.
type Gemini struct {
	gen     generator
	model   string
	catalog Catalog
	breaker *resilience.Breaker
	cache   *cache.JSON
	timeout time.Duration
	logger  zerolog.Logger
}

// NewGemini creates a Gemini API client and wraps it as a Searcher.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("search: create gemini client: %w", err)
	}
	return newGemini(client.Models, cfg), nil
}

func newGemini(gen generator, cfg GeminiConfig) *Gemini {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Gemini{
		gen:     gen,
		model:   model,
		catalog: cfg.Catalog,
		breaker: cfg.Breaker,
		cache:   cfg.Cache,
		timeout: timeout,
		logger:  cfg.Logger,
	}
}

// Search returns product ids the model judged relevant, in model order, restricted to ids that
// exist in the catalog. Any failure yields an empty result.
func (g *Gemini) Search(ctx context.Context, query string) []string {
	q := normaliseQuery(query)
	if g == nil || q == "" {
		return nil
	}
	key := g.cache.Key("q", common.Digest(q))
	var cached []string
	if ok, err := g.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		obs.IncCounter(obs.SearchRequestsTotal, "cache_hit")
		return cached
	}

	ids, err := g.lookup(ctx, q)
	switch {
	case errors.Is(err, resilience.ErrOpenCircuit):
		obs.IncCounter(obs.SearchRequestsTotal, "circuit_open")
		return nil
	case err != nil:
		obs.IncCounter(obs.SearchRequestsTotal, "error")
		g.logger.Warn().Err(err).Str("query", q).Msg("gemini search failed")
		return nil
	}
	obs.IncCounter(obs.SearchRequestsTotal, "ok")
	if err := g.cache.SetJSON(ctx, key, ids); err != nil {
		g.logger.Debug().Err(err).Msg("cache search result")
	}
	return ids
}

func (g *Gemini) lookup(ctx context.Context, q string) ([]string, error) {
	if g.catalog == nil {
		return nil, errors.New("catalog not configured")
	}
	snap, err := g.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	products := snap.Products
	if snap.Bundle != nil {
		products = append([]catalog.Product{*snap.Bundle}, products...)
	}

	var resp *genai.GenerateContentResponse
	call := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		var err error
		resp, err = g.gen.GenerateContent(ctx, g.model, genai.Text(buildPrompt(q, products)), responseConfig())
		return err
	}
	if g.breaker != nil {
		err = g.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("empty gemini response")
	}

	var out struct {
		ProductIDs []string `json:"productIds"`
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return []string{}, nil
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	return knownIDs(out.ProductIDs, snap), nil
}

func responseConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"productIds": {
					Type:        genai.TypeArray,
					Items:       &genai.Schema{Type: genai.TypeString},
					Description: "List of matching product IDs",
				},
			},
		},
	}
}

func buildPrompt(q string, products []catalog.Product) string {
	var b strings.Builder
	b.WriteString("A student is searching a university notes store. Their search is: \"")
	b.WriteString(q)
	b.WriteString("\".\n\nFind the most relevant products in the list below. If the search is vague ")
	b.WriteString("(for example \"the coding course\"), reason from the descriptions and tags.\n\nProducts:\n")
	for _, p := range products {
		fmt.Fprintf(&b, "ID: %s, Code: %s, Name: %s, Desc: %s, Tags: %s\n",
			p.ID, p.Code, p.Name, p.Description, strings.Join(p.Tags, ", "))
	}
	b.WriteString("\nReturn only the IDs of the most relevant products. Return an empty list when nothing matches.")
	return b.String()
}

func knownIDs(ids []string, snap catalog.Snapshot) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			continue
		}
		if _, ok := snap.Find(id); !ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
