package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// DefaultLocalNetworkBaseURL is the default base URL for a locally running
// embedding daemon (an Ollama-compatible /api/embed endpoint).
const DefaultLocalNetworkBaseURL = "http://localhost:11434"

var _ Provider = (*LocalNetworkProvider)(nil)

// LocalNetworkProvider implements Provider against a local daemon's
// /api/embed endpoint (the shape exposed by Ollama and compatible servers).
// Per SPEC_FULL.md §4.2, the daemon accepts exactly one prompt per request,
// so EmbedBatch issues one HTTP call per text rather than batching.
//
// Dimension resolution: an explicit value (set at construction) takes
// priority; failing that, a built-in table of well-known model names;
// failing that, a single probe request on first Dimensions() call.
//
// LocalNetworkProvider is safe for concurrent use.
type LocalNetworkProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client

	dimensions int
	detectOnce sync.Once
}

// NewLocalNetwork constructs a LocalNetworkProvider. baseURL defaults to
// DefaultLocalNetworkBaseURL when empty; model must not be empty.
func NewLocalNetwork(baseURL, model string, dimensions int, httpClient *http.Client) (*LocalNetworkProvider, error) {
	if model == "" {
		return nil, fmt.Errorf("embeddings: local-network: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultLocalNetworkBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if dimensions == 0 {
		dimensions = knownLocalNetworkDimensions(model)
	}
	return &LocalNetworkProvider{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		dimensions: dimensions,
	}, nil
}

type localEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type localEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements Provider with a single-prompt /api/embed call.
func (p *LocalNetworkProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.callEmbed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embeddings: local-network: embed: %w", err)
	}
	if err := checkDimension(vecs, p.Dimensions()); err != nil {
		return nil, err
	}
	return vecs, nil
}

// EmbedBatch implements Provider by issuing one request per text, since the
// daemon accepts only a single prompt per call.
func (p *LocalNetworkProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embeddings: local-network: embed batch[%d]: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions implements Provider, auto-detecting via a probe request for
// unrecognized models.
func (p *LocalNetworkProvider) Dimensions() int {
	if p.dimensions != 0 {
		return p.dimensions
	}
	p.detectOnce.Do(func() {
		vec, err := p.callEmbed(context.Background(), "probe")
		if err == nil {
			p.dimensions = len(vec)
		}
	})
	return p.dimensions
}

// ModelID implements Provider.
func (p *LocalNetworkProvider) ModelID() string {
	return p.model
}

func (p *LocalNetworkProvider) callEmbed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(localEmbedRequest{Model: p.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result localEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embeddings in response")
	}
	return result.Embeddings[0], nil
}

func knownLocalNetworkDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "nomic-embed-text"):
		return 768
	case strings.Contains(lower, "mxbai-embed-large"):
		return 1024
	case strings.Contains(lower, "all-minilm"):
		return 384
	default:
		return 0
	}
}

func checkDimension(vec []float32, want int) error {
	if want != 0 && len(vec) != want {
		return fmt.Errorf("embeddings: dimension mismatch: got %d, want %d", len(vec), want)
	}
	return nil
}
