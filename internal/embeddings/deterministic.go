package embeddings

import "context"

const (
	fnvOffsetBasis uint32 = 2166136261
	fnvPrime       uint32 = 16777619
)

var _ Provider = (*DeterministicProvider)(nil)

// DeterministicProvider produces repeatable embeddings with no I/O: an
// FNV-1a hash of the input text seeds an xorshift32 PRNG that fills the
// vector with values in [-1, 1]. Used for tests and offline development.
//
// DeterministicProvider is safe for concurrent use (it holds no mutable
// state).
type DeterministicProvider struct {
	model      string
	dimensions int
}

// NewDeterministic constructs a DeterministicProvider for the given fixed
// dimension.
func NewDeterministic(model string, dimensions int) *DeterministicProvider {
	return &DeterministicProvider{model: model, dimensions: dimensions}
}

// Embed implements Provider by hashing text with FNV-1a and filling the
// vector via xorshift32.
func (p *DeterministicProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return embedDeterministic(text, p.dimensions), nil
}

// EmbedBatch implements Provider.
func (p *DeterministicProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embedDeterministic(text, p.dimensions)
	}
	return out, nil
}

// Dimensions implements Provider.
func (p *DeterministicProvider) Dimensions() int {
	return p.dimensions
}

// ModelID implements Provider.
func (p *DeterministicProvider) ModelID() string {
	return p.model
}

func embedDeterministic(text string, dimensions int) []float32 {
	var seed uint32 = fnvOffsetBasis
	for i := 0; i < len(text); i++ {
		seed ^= uint32(text[i])
		seed *= fnvPrime
	}

	vector := make([]float32, dimensions)
	x := seed
	for i := 0; i < dimensions; i++ {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		normalized := float64(x) / float64(^uint32(0))
		vector[i] = float32(normalized*2.0 - 1.0)
	}
	return vector
}
