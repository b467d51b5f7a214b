// Package embed turns query text into dense vectors via an external
// embedding service. Implementations must be safe for concurrent use;
// the engine shares one embedder across all in-flight requests.
package embed

import "context"

// Embedder produces a dense vector for a piece of text.
type Embedder interface {
	// Embed returns the embedding of text. Callers bound the call with a
	// context deadline and degrade to lexical-only search on error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// ModelName returns the model identifier, for logging.
	ModelName() string
}
