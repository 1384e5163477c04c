package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/chain"
	"github.com/hyperjump/kusari/internal/config"
	"github.com/hyperjump/kusari/internal/embedding"
	"github.com/hyperjump/kusari/internal/lexical"
	"github.com/hyperjump/kusari/internal/models"
	"github.com/hyperjump/kusari/internal/search"
	"github.com/hyperjump/kusari/internal/storage"
	"github.com/hyperjump/kusari/internal/store"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type testEnv struct {
	handler http.Handler
	store   *store.Store
	watch   *mockWatchService
	cfg     *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	cfg := &config.Config{Storage: config.StorageConfig{DataDir: dir}}
	config.ApplyDefaults(cfg)
	cfg.Storage.MetadataPath = filepath.Join(dir, "problems.json")
	cfg.Storage.IndexPath = filepath.Join(dir, "vectors.index")
	cfg.Storage.EmbeddingsDir = filepath.Join(dir, "embeddings")

	embedder := embedding.NewMockEmbedder(8)
	lex, err := lexical.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lex.Close() })

	st, err := store.Open(ctx, embedder, storage.NewJSONStore(cfg.Storage.MetadataPath),
		storage.NewVectorFiles(cfg.Storage.EmbeddingsDir), cfg.Storage.IndexPath, store.WithObserver(lex))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc := search.NewService(embedder, st, search.WithMaxTopK(cfg.Search.MaxTopK))
	watch := &mockWatchService{dirs: []string{"/tmp/docs"}}
	srv := NewServer(Deps{
		Store:   st,
		Search:  svc,
		Chain:   chain.NewReasoner(embedder, svc),
		Lexical: lex,
		Watch:   watch,
		Config:  cfg,
	}, zap.NewNop())
	return &testEnv{handler: srv.Handler(), store: st, watch: watch, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestItemsLifecycle(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/items", insertRequest{Text: "2+2=4", Source: "p1.txt"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 0, decode[insertResponse](t, w).ID)

	w = e.do(t, http.MethodPost, "/api/v1/items", insertRequest{Text: "2+2=4"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/items/batch", batchRequest{Texts: []string{"The sky is blue", "2+2=4", "3+5=8"}})
	require.Equal(t, http.StatusOK, w.Code)
	batch := decode[batchResponse](t, w)
	assert.Equal(t, 2, batch.Inserted)
	assert.Equal(t, 1, batch.Skipped)

	w = e.do(t, http.MethodGet, "/api/v1/items/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	it := decode[models.Item](t, w)
	assert.Equal(t, "batch_1", it.SourceLabel)
	assert.Equal(t, "The sky is blue", it.TextExcerpt)

	w = e.do(t, http.MethodGet, "/api/v1/items", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]models.Item](t, w)["items"], 3)

	w = e.do(t, http.MethodDelete, "/api/v1/items/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, "/api/v1/items/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodDelete, "/api/v1/items/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodGet, "/api/v1/items/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[statusResponse](t, w)
	assert.Equal(t, 2, st.Items)
	assert.Equal(t, 2, st.IndexSize)
	assert.Equal(t, 8, st.Dimension)
	require.NotNil(t, st.LexicalDocs)
	assert.Equal(t, uint64(2), *st.LexicalDocs)
}

func TestSearchAndChain(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/search", map[string]any{"text": "2+2=4"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "no index persisted yet")

	_, err := e.store.InsertBatch(context.Background(), []string{"2+2=4", "The sky is blue", "3+5=8"}, "")
	require.NoError(t, err)

	w = e.do(t, http.MethodPost, "/api/v1/search", map[string]any{"text": "2+2=4", "top_k": 2})
	require.Equal(t, http.StatusOK, w.Code)
	results := decode[map[string][]models.SearchResult](t, w)["results"]
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-9)

	w = e.do(t, http.MethodPost, "/api/v1/search", map[string]any{"text": "x", "top_k": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodPost, "/api/v1/search", map[string]any{"vector": []float32{1, 2}, "top_k": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/chain", map[string]any{"text": "2+2=4"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[models.ChainResult](t, w)
	assert.Equal(t, e.cfg.Chain.MaxIter, res.MaxIter)
	assert.Equal(t, models.StopConverged, res.Stop)
	assert.Empty(t, res.Steps)
	assert.NotEmpty(t, res.RunID)

	w = e.do(t, http.MethodPost, "/api/v1/chain", map[string]any{"text": "q", "max_iter": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFind(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.store.Insert(context.Background(), "The sky is blue", "sky.txt")
	require.NoError(t, err)

	w := e.do(t, http.MethodGet, "/api/v1/find?q=sky&limit=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decode[map[string][]models.FindResult](t, w)["results"]
	require.Len(t, results, 1)
	assert.Equal(t, "sky.txt", results[0].SourceLabel)

	w = e.do(t, http.MethodGet, "/api/v1/find?q=skyy&fuzzy=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]models.FindResult](t, w)["results"], 1)

	w = e.do(t, http.MethodGet, "/api/v1/find?q=", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWatchDirectories(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"/tmp/docs"}, decode[map[string][]string](t, w)["directories"])

	dir := t.TempDir()
	w = e.do(t, http.MethodPost, "/api/v1/watch/directories", watchRequest{Path: dir})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, e.watch.dirs, dir)

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	w = e.do(t, http.MethodPost, "/api/v1/watch/directories", watchRequest{Path: file})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodPost, "/api/v1/watch/directories", watchRequest{Path: filepath.Join(dir, "missing")})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, e.watch.dirs, dir)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.InvalidArgument("bad"), http.StatusBadRequest},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrDuplicateItem, http.StatusConflict},
		{&models.DimensionMismatchError{Expected: 3, Actual: 2}, http.StatusUnprocessableEntity},
		{models.ErrIndexUnavailable, http.StatusServiceUnavailable},
		{models.ErrMetadataUnavailable, http.StatusServiceUnavailable},
		{os.ErrPermission, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
