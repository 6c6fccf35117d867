package embedding

import "context"

// Provider defines the interface for generating text embeddings. Embed
// accepts a batch so a whole stage's texts go out in a single call.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
