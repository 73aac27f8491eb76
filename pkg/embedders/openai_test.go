package embedders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhub/lexhub/pkg/config"
)

func newMockEmbedServer(t *testing.T, dim int, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Return data in reverse order to exercise index restoration.
		resp := embedResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			vec[0] = float32(i)
			resp.Data = append(resp.Data, embedData{Index: i, Embedding: vec})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedBatchRestoresOrder(t *testing.T) {
	srv := newMockEmbedServer(t, 4, nil)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(config.EmbedderConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	vectors, err := e.EmbedBatch(context.Background(), []string{"甲", "乙", "丙"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, vec := range vectors {
		assert.Equal(t, float32(i), vec[0], "vector %d out of order", i)
	}
}

func TestEmbedBatchSplitsByBatchSize(t *testing.T) {
	var calls int
	srv := newMockEmbedServer(t, 4, &calls)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(config.EmbedderConfig{
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		BatchSize: 2,
	})
	require.NoError(t, err)

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, 3, calls)
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	e, err := NewOpenAIEmbedder(config.EmbedderConfig{APIKey: "test-key", BaseURL: "http://unused"})
	require.NoError(t, err)

	vectors, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestDimensionProbeCached(t *testing.T) {
	var calls int
	srv := newMockEmbedServer(t, 1024, &calls)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(config.EmbedderConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	dim, err := e.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1024, dim)

	_, err = e.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDimensionConfiguredSkipsProbe(t *testing.T) {
	e, err := NewOpenAIEmbedder(config.EmbedderConfig{
		APIKey:    "test-key",
		BaseURL:   "http://unused",
		Dimension: 768,
	})
	require.NoError(t, err)

	dim, err := e.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 768, dim)
}
