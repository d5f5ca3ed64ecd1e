package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// hostedMaxAttempts and hostedBackoff implement the exponential backoff
// schedule named in SPEC_FULL.md §4.2: up to 3 attempts, 2s then 4s between
// retries.
const hostedMaxAttempts = 3

var hostedBackoff = []time.Duration{2 * time.Second, 4 * time.Second}

var _ Provider = (*HostedProvider)(nil)

// HostedProvider implements Provider against a remote embedding service via
// a bare JSON POST, with exponential-backoff retry. It carries no vendor SDK
// dependency — see DESIGN.md for why.
//
// HostedProvider is safe for concurrent use.
type HostedProvider struct {
	baseURL    string
	model      string
	apiKey     string
	dimensions int
	httpClient *http.Client
}

// NewHosted constructs a HostedProvider. apiKey must be non-empty; model and
// dimensions must be known ahead of time (the hosted model registry entry).
func NewHosted(baseURL, model, apiKey string, dimensions int, httpClient *http.Client) (*HostedProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embeddings: hosted: api key must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("embeddings: hosted: model must not be empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HostedProvider{
		baseURL:    baseURL,
		model:      model,
		apiKey:     apiKey,
		dimensions: dimensions,
		httpClient: httpClient,
	}, nil
}

type hostedEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type hostedEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed implements Provider.
func (p *HostedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Provider, retrying the whole batch request up to
// hostedMaxAttempts times with the hostedBackoff schedule on transport or
// non-2xx failure. ctx cancellation aborts the retry loop immediately.
func (p *HostedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt < hostedMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("embeddings: hosted: embed batch: %w", ctx.Err())
			case <-time.After(hostedBackoff[attempt-1]):
			}
		}

		vecs, err := p.callEmbed(ctx, texts)
		if err == nil {
			if len(vecs) != len(texts) {
				return nil, fmt.Errorf("embeddings: hosted: embed batch: expected %d embeddings, got %d", len(texts), len(vecs))
			}
			for _, v := range vecs {
				if err := checkDimension(v, p.dimensions); err != nil {
					return nil, err
				}
			}
			return vecs, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embeddings: hosted: embed batch: all %d attempts failed: %w", hostedMaxAttempts, lastErr)
}

// Dimensions implements Provider.
func (p *HostedProvider) Dimensions() int {
	return p.dimensions
}

// ModelID implements Provider.
func (p *HostedProvider) ModelID() string {
	return p.model
}

func (p *HostedProvider) callEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(hostedEmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result hostedEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	vecs := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
