package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/chain"
	"github.com/hyperjump/kusari/internal/config"
	"github.com/hyperjump/kusari/internal/models"
	"github.com/hyperjump/kusari/internal/storage"
)

type insertRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

type insertResponse struct {
	ID        int  `json:"id"`
	Duplicate bool `json:"duplicate,omitempty"`
}

type batchRequest struct {
	Texts  []string `json:"texts"`
	Source string   `json:"source"`
}

type batchResponse struct {
	Inserted int                   `json:"inserted"`
	Skipped  int                   `json:"skipped"`
	Outcomes []models.BatchOutcome `json:"outcomes"`
}

type searchRequest struct {
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
	TopK   *int      `json:"top_k"`
}

type chainRequest struct {
	Text    string   `json:"text"`
	MaxIter *int     `json:"max_iter"`
	Tol     *float64 `json:"tol"`
}

type statusResponse struct {
	models.StoreStats
	LexicalDocs    *uint64      `json:"lexical_docs,omitempty"`
	DiskUsageBytes *int64       `json:"disk_usage_bytes,omitempty"`
	Config         statusConfig `json:"config"`
}

type statusConfig struct {
	EmbeddingProvider string `json:"embedding_provider"`
	MetadataBackend   string `json:"metadata_backend"`
	MetadataPath      string `json:"metadata_path"`
	IndexPath         string `json:"index_path"`
	IndexCompression  string `json:"index_compression"`
	EmbeddingsDir     string `json:"embeddings_dir"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Store.Stats(r.Context())
	if err != nil {
		s.respondFailure(w, "status", err)
		return
	}
	cfg := s.deps.Config
	resp := statusResponse{
		StoreStats: stats,
		Config: statusConfig{
			EmbeddingProvider: cfg.Embedding.Provider,
			MetadataBackend:   cfg.Storage.MetadataBackend,
			MetadataPath:      metadataPath(cfg),
			IndexPath:         cfg.Storage.IndexPath,
			IndexCompression:  cfg.Index.Compression,
			EmbeddingsDir:     cfg.Storage.EmbeddingsDir,
		},
	}
	if s.deps.Lexical != nil {
		if n, err := s.deps.Lexical.DocCount(); err == nil {
			resp.LexicalDocs = &n
		}
	}
	if n, err := storage.DiskUsageBytes(metadataPath(cfg), cfg.Storage.IndexPath, cfg.Storage.EmbeddingsDir); err == nil {
		resp.DiskUsageBytes = &n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func metadataPath(cfg *config.Config) string {
	if cfg.Storage.MetadataBackend == storage.BackendSQLite {
		return cfg.Storage.SQLitePath
	}
	return cfg.Storage.MetadataPath
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Store.List(r.Context())
	if err != nil {
		s.respondFailure(w, "list items", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleInsertItem(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	id, err := s.deps.Store.Insert(r.Context(), req.Text, req.Source)
	if errors.Is(err, models.ErrDuplicateItem) {
		s.respondJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "id": id})
		return
	}
	if err != nil {
		s.respondFailure(w, "insert item", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, insertResponse{ID: id})
}

func (s *Server) handleInsertBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Texts) == 0 {
		s.respondError(w, http.StatusBadRequest, "texts is required")
		return
	}
	outcomes, err := s.deps.Store.InsertBatch(r.Context(), req.Texts, req.Source)
	if err != nil {
		s.respondFailure(w, "insert batch", err)
		return
	}
	resp := batchResponse{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Skipped {
			resp.Skipped++
		} else if o.Inserted() {
			resp.Inserted++
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) itemID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		s.respondError(w, http.StatusBadRequest, "id must be a non-negative integer")
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	it, err := s.deps.Store.Get(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "get item", err)
		return
	}
	s.respondJSON(w, http.StatusOK, it)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	s.logger.Debug("remove item request", zap.Int("id", id))
	if err := s.deps.Store.Remove(r.Context(), id); err != nil {
		s.respondFailure(w, "remove item", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": "removed"})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Rebuild(r.Context()); err != nil {
		s.respondFailure(w, "rebuild", err)
		return
	}
	stats, err := s.deps.Store.Stats(r.Context())
	if err != nil {
		s.respondFailure(w, "rebuild", err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q := models.SearchQuery{Text: req.Text, Vector: req.Vector, TopK: s.deps.Config.Search.DefaultTopK}
	if req.TopK != nil {
		q.TopK = *req.TopK
	}
	s.logger.Debug("search request", zap.String("text", q.Text), zap.Int("top_k", q.TopK))
	results, err := s.deps.Search.Search(r.Context(), q)
	if err != nil {
		s.respondFailure(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	var req chainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	opts := chain.Options{MaxIter: s.deps.Config.Chain.MaxIter, Tol: s.deps.Config.Chain.Tol}
	if req.MaxIter != nil {
		opts.MaxIter = *req.MaxIter
	}
	if req.Tol != nil {
		opts.Tol = *req.Tol
	}
	res, err := s.deps.Chain.Run(r.Context(), req.Text, opts)
	if err != nil {
		s.respondFailure(w, "chain", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	if s.deps.Lexical == nil {
		s.respondError(w, http.StatusNotImplemented, "keyword lookup not enabled")
		return
	}
	limit := s.deps.Config.Search.DefaultTopK
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	fuzzy, _ := strconv.ParseBool(r.URL.Query().Get("fuzzy"))
	results, err := s.deps.Lexical.Search(r.Context(), r.URL.Query().Get("q"), limit, fuzzy)
	if err != nil {
		s.respondFailure(w, "find", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.deps.Watch.Directories()})
}

type watchRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.deps.Watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.deps.Watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.deps.ConfigPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.deps.Config.Watch.Directories = s.deps.Watch.Directories()
	if err := config.Save(s.deps.ConfigPath, s.deps.Config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// statusFor maps store and query errors to HTTP status codes.
func statusFor(err error) int {
	var dm *models.DimensionMismatchError
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateItem):
		return http.StatusConflict
	case errors.As(err, &dm):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrIndexUnavailable), errors.Is(err, models.ErrMetadataUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
