package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/maxnotes/storefront/internal/cache"
	"github.com/maxnotes/storefront/internal/catalog"
	"github.com/maxnotes/storefront/internal/resilience"
)

type fakeGenerator struct {
	reply  string
	err    error
	calls  int
	prompt string
	config *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.config = cfg
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func newCatalog(t *testing.T) *catalog.Service {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: catalog.EmbeddedSource{}})
	require.NoError(t, err)
	return svc
}

func TestGeminiSearchFiltersUnknownIDsAndCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gen := &fakeGenerator{reply: `{"productIds":["cs1010e","ghost","cs1010e","dabao-full-access"]}`}
	g := newGemini(gen, GeminiConfig{Catalog: newCatalog(t), Cache: cache.NewJSON(client, "search", time.Minute)})

	ids := g.Search(context.Background(), "  The Coding   Course ")
	require.Equal(t, []string{"cs1010e", "dabao-full-access"}, ids)
	require.Equal(t, 1, gen.calls)
	require.Contains(t, gen.prompt, `"the coding course"`)
	require.Contains(t, gen.prompt, "ID: cs1010e, Code: CS1010E")
	require.Equal(t, "application/json", gen.config.ResponseMIMEType)
	require.Equal(t, genai.TypeArray, gen.config.ResponseSchema.Properties["productIds"].Type)

	ids = g.Search(context.Background(), "the coding course")
	require.Equal(t, []string{"cs1010e", "dabao-full-access"}, ids)
	require.Equal(t, 1, gen.calls)
}

func TestGeminiSearchDegradesToEmpty(t *testing.T) {
	cases := []struct {
		name  string
		gen   *fakeGenerator
		query string
	}{
		{name: "blank query", gen: &fakeGenerator{reply: `{"productIds":["cs1010e"]}`}, query: "   "},
		{name: "api error", gen: &fakeGenerator{err: errors.New("quota exceeded")}, query: "calculus"},
		{name: "malformed reply", gen: &fakeGenerator{reply: `not json`}, query: "calculus"},
		{name: "empty reply", gen: &fakeGenerator{reply: ``}, query: "calculus"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			g := newGemini(tc.gen, GeminiConfig{Catalog: newCatalog(t)})
			require.Empty(t, g.Search(context.Background(), tc.query))
		})
	}

	var nilGemini *Gemini
	require.Nil(t, nilGemini.Search(context.Background(), "calculus"))
	require.Nil(t, Disabled{}.Search(context.Background(), "calculus"))
}

func TestGeminiSearchStopsCallingWhenBreakerOpens(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("503 unavailable")}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "gemini", MinRequests: 2, OpenFor: time.Minute})
	g := newGemini(gen, GeminiConfig{Catalog: newCatalog(t), Breaker: breaker})

	for i := 0; i < 5; i++ {
		require.Empty(t, g.Search(context.Background(), "calculus"))
	}
	require.Equal(t, resilience.Open, breaker.State())
	require.Equal(t, 2, gen.calls)
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiConfig{})
	require.ErrorIs(t, err, ErrNoAPIKey)
}

func TestBuildPromptListsBundleFirst(t *testing.T) {
	snap, err := newCatalog(t).Snapshot(context.Background())
	require.NoError(t, err)
	prompt := buildPrompt("x", append([]catalog.Product{*snap.Bundle}, snap.Products...))
	require.Less(t, strings.Index(prompt, "dabao-full-access"), strings.Index(prompt, "cs1010e"))
}
