package vector

import (
	"context"
	"fmt"

	"github.com/lexhub/lexhub/pkg/config"
)

// Result is a scored match from a similarity search.
type Result struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]any
	Score    float32
}

// Provider is a vector store holding long-term memory records.
// Embeddings are computed externally; providers only store and search
// pre-computed vectors.
type Provider interface {
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Get fetches one record by id. A missing id returns nil without
	// error.
	Get(ctx context.Context, collection string, id string) (*Result, error)

	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)
	Delete(ctx context.Context, collection string, id string) error
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error
	CreateCollection(ctx context.Context, collection string, vectorDimension int) error
	DeleteCollection(ctx context.Context, collection string) error

	// Count returns the number of records in a collection.
	Count(ctx context.Context, collection string) (int, error)

	Name() string
	Close() error
}

// NewProvider builds the configured vector store: "chromem" for the
// embedded default, "qdrant" for an external server.
func NewProvider(cfg config.VectorDBConfig) (Provider, error) {
	switch cfg.Type {
	case "chromem", "":
		return NewChromemProvider(ChromemConfig{PersistPath: cfg.Path})
	case "qdrant":
		return NewQdrantProvider(QdrantConfig{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
			UseTLS: cfg.UseTLS,
		})
	default:
		return nil, fmt.Errorf("unknown vector store type %q", cfg.Type)
	}
}
