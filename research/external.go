package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quantforge/hft/models"
)

// externalFeatureTimeout bounds every external-feature lookup; a slow
// sentiment or on-chain provider must never stall a trading cycle.
const externalFeatureTimeout = 3 * time.Second

// ExternalFeatureProvider fetches one optional numeric feature for a
// symbol from a third-party source (sentiment, on-chain flow, multi-day
// trend). Failures are best-effort: the accuracy scorer treats an error or
// zero-value result as "no signal", never as a reason to abort the cycle.
type ExternalFeatureProvider interface {
	Kind() models.ExternalFeatureKind
	Fetch(ctx context.Context, symbol string) (models.ExternalFeature, error)
}

// httpFeatureProvider is the shared shape behind the sentiment and
// on-chain providers below: a simple GET against a JSON endpoint returning
// a single numeric field, bounded by externalFeatureTimeout.
type httpFeatureProvider struct {
	kind       models.ExternalFeatureKind
	name       string
	baseURL    string
	apiKey     string
	valueField string
	httpClient *http.Client
}

func newHTTPFeatureProvider(kind models.ExternalFeatureKind, name, baseURL, apiKey, valueField string) *httpFeatureProvider {
	return &httpFeatureProvider{
		kind:       kind,
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		valueField: valueField,
		httpClient: &http.Client{Timeout: externalFeatureTimeout},
	}
}

func (p *httpFeatureProvider) Kind() models.ExternalFeatureKind { return p.kind }

func (p *httpFeatureProvider) Fetch(ctx context.Context, symbol string) (models.ExternalFeature, error) {
	ctx, cancel := context.WithTimeout(ctx, externalFeatureTimeout)
	defer cancel()

	url := fmt.Sprintf("%s?symbol=%s&token=%s", p.baseURL, symbol, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.ExternalFeature{}, fmt.Errorf("%s: build request: %w", p.name, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return models.ExternalFeature{}, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ExternalFeature{}, fmt.Errorf("%s: unexpected status %d", p.name, resp.StatusCode)
	}

	var payload map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.ExternalFeature{}, fmt.Errorf("%s: decode response: %w", p.name, err)
	}

	return models.ExternalFeature{
		Provider:  p.name,
		Kind:      p.kind,
		Value:     payload[p.valueField],
		FetchedAt: time.Now(),
	}, nil
}

// NewSentimentProvider builds a feature provider over a social-sentiment
// aggregation endpoint returning a score in roughly [-1, 1].
func NewSentimentProvider(baseURL, apiKey string) ExternalFeatureProvider {
	return newHTTPFeatureProvider(models.FeatureSentiment, "sentiment_feed", baseURL, apiKey, "sentiment_score")
}

// NewOnChainProvider builds a feature provider over an on-chain net-flow
// endpoint returning a signed flow value.
func NewOnChainProvider(baseURL, apiKey string) ExternalFeatureProvider {
	return newHTTPFeatureProvider(models.FeatureOnChain, "onchain_flow", baseURL, apiKey, "net_flow")
}

// NewTrendProvider builds a feature provider over a multi-day price-trend
// endpoint returning a signed trend strength.
func NewTrendProvider(baseURL, apiKey string) ExternalFeatureProvider {
	return newHTTPFeatureProvider(models.FeatureTrend, "multiday_trend", baseURL, apiKey, "trend_strength")
}

// fetchAll queries every provider concurrently-safely-enough: sequentially,
// since at most three lightweight HTTP calls run per cycle and each is
// individually bounded by externalFeatureTimeout. A failing provider
// contributes nothing rather than aborting the others.
func fetchAll(ctx context.Context, providers []ExternalFeatureProvider, symbol string) []models.ExternalFeature {
	features := make([]models.ExternalFeature, 0, len(providers))
	for _, p := range providers {
		feat, err := p.Fetch(ctx, symbol)
		if err != nil {
			continue
		}
		features = append(features, feat)
	}
	return features
}
