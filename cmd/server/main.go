package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/foliumapp/ragcore/internal/config"
	"github.com/foliumapp/ragcore/internal/engine"
	"github.com/foliumapp/ragcore/internal/logger"
	"github.com/foliumapp/ragcore/pkg/chunk"
	"github.com/foliumapp/ragcore/pkg/clients/embedding"
	"github.com/foliumapp/ragcore/pkg/clients/rerank"
	"github.com/foliumapp/ragcore/pkg/contextbuild"
	"github.com/foliumapp/ragcore/pkg/embed"
	"github.com/foliumapp/ragcore/pkg/errs"
	"github.com/foliumapp/ragcore/pkg/normalize"
	rredis "github.com/foliumapp/ragcore/pkg/redis"
	"github.com/foliumapp/ragcore/pkg/retrieve"
	"github.com/foliumapp/ragcore/pkg/store"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	eng, cleanup, err := buildEngine(cfg, log)
	if err != nil {
		log.Error("engine build failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      newRouter(eng, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server_listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server_failed", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	log.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_failed", slog.String("error", err.Error()))
	}
}

// buildEngine constructs the explicit Engine value from configuration: the
// Index Store (hybrid or postgres, per cfg.Store.Backend), the embedding
// and reranker clients, the two-tier embedding cache (plus its optional
// Redis mirror), and the retrieval/context-building layers on top. The
// returned cleanup func releases every resource buildEngine opened.
func buildEngine(cfg *config.Config, log *slog.Logger) (*engine.Engine, func(), error) {
	ctx := context.Background()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build store: %w", err)
	}

	chunker, err := chunk.New(chunk.Config{
		TargetChunkSize:  cfg.Chunking.TargetChunkSize,
		MinChunkSize:     cfg.Chunking.MinChunkSize,
		MaxChunkSize:     cfg.Chunking.MaxChunkSize,
		OverlapSentences: cfg.Chunking.OverlapSentences,
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("build chunker: %w", err)
	}

	embeddingClient := embedding.NewClient(cfg.Services.Embedding)
	provider := embed.NewClientProvider(embeddingClient, cfg.Services.Embedding.Model)

	interBatchPause, err := time.ParseDuration(cfg.Embedding.InterBatchPause)
	if err != nil {
		interBatchPause = 50 * time.Millisecond
	}
	baseBackoff, err := time.ParseDuration(cfg.Embedding.BaseBackoff)
	if err != nil {
		baseBackoff = 200 * time.Millisecond
	}
	cacheTTL, err := time.ParseDuration(cfg.Embedding.CacheTTL)
	if err != nil {
		cacheTTL = 168 * time.Hour
	}

	embedSvc, err := embed.NewService(embed.Config{
		Dimension:       cfg.Embedding.Dimension,
		Model:           cfg.Embedding.Model,
		CacheRoot:       cfg.Embedding.CacheRoot,
		CacheMaxSize:    cfg.Embedding.CacheMaxSize,
		CacheTTL:        cacheTTL,
		BatchSize:       cfg.Embedding.BatchSize,
		InterBatchPause: interBatchPause,
		MaxRetries:      cfg.Embedding.MaxRetries,
		BaseBackoff:     baseBackoff,
	}, provider)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("build embedding service: %w", err)
	}

	var closeRedis func()
	if host := os.Getenv("RAGCORE_REDIS_HOST"); host != "" {
		port, _ := strconv.Atoi(os.Getenv("RAGCORE_REDIS_PORT"))
		if port == 0 {
			port = 6379
		}
		db, _ := strconv.Atoi(os.Getenv("RAGCORE_REDIS_DB"))
		client, err := rredis.NewClient(rredis.ClientOptions{
			Host:     host,
			Port:     port,
			Password: os.Getenv("RAGCORE_REDIS_PASSWORD"),
			DB:       db,
		})
		if err != nil {
			log.Warn("redis_mirror_unavailable", slog.String("error", err.Error()))
		} else {
			embedSvc.WithRemoteCache(client, cacheTTL)
			closeRedis = client.Close
			log.Info("redis_mirror_enabled", slog.String("host", host))
		}
	}

	var reranker rerank.Reranker
	if cfg.Services.Reranker.BaseURL != "" {
		reranker = rerank.NewClient(cfg.Services.Reranker)
	}

	retriever := &retrieve.Engine{
		Store:    st,
		Embedder: embedSvc,
		Reranker: reranker,
		Logger:   log,
		Config: retrieve.Config{
			RRFConstant:         cfg.Retrieval.RRFConstant,
			PageBoost:           cfg.Retrieval.PageBoost,
			RefBoost:            cfg.Retrieval.RefBoost,
			VectorWeight:        cfg.Retrieval.VectorWeight,
			BM25Weight:          cfg.Retrieval.BM25Weight,
			SimilarityThreshold: float32(cfg.Retrieval.SimilarityThreshold),
		},
		RerankTopK: cfg.Retrieval.RerankTopK,
	}

	builder := contextbuild.NewBuilder(contextbuild.Config{
		TokenMultiplier:       cfg.Context.TokenMultiplier,
		Header:                contextbuild.DefaultConfig().Header,
		Guidelines:            contextbuild.DefaultConfig().Guidelines,
		HighMatchThreshold:    contextbuild.DefaultConfig().HighMatchThreshold,
		VeryRelevantThreshold: contextbuild.DefaultConfig().VeryRelevantThreshold,
		MaxFooterPages:        contextbuild.DefaultConfig().MaxFooterPages,
	})

	eng := engine.New(chunker, embedSvc, st, retriever, builder, log, normalize.Opts{
		PreserveTables:      true,
		NormalizeWhitespace: true,
		DetectParagraphs:    true,
		IncludePageMarkers:  true,
		RemoveHyphenation:   true,
	}, cfg.Retrieval.TopK, cfg.Context.MaxContextTokens)

	cleanup := func() {
		if closeRedis != nil {
			closeRedis()
		}
		if err := st.Close(); err != nil {
			log.Warn("store_close_failed", slog.String("error", err.Error()))
		}
	}

	return eng, cleanup, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.PostgresDSN, cfg.Embedding.Dimension)
	default:
		return store.NewHybridStore(store.HybridStoreConfig{
			Dimension:  cfg.Embedding.Dimension,
			BM25Path:   cfg.Store.BM25Path,
			VectorRoot: cfg.Store.VectorRoot,
		})
	}
}

func newRouter(eng *engine.Engine, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/documents/{fileID}/ingest", handleIngest(eng, log))
	mux.HandleFunc("POST /v1/documents/{fileID}/query", handleQuery(eng))
	mux.HandleFunc("GET /v1/cache/stats", handleCacheStats(eng))
	mux.HandleFunc("POST /v1/cache/clear-memory", handleClearMemory(eng))
	mux.HandleFunc("POST /v1/cache/cleanup-disk", handleCleanupDisk(eng))

	return mux
}

type ingestPageRequest struct {
	PageNumber int    `json:"pageNumber"`
	Text       string `json:"text"`
}

type ingestRequest struct {
	Pages []ingestPageRequest `json:"pages"`
}

type ingestResponse struct {
	FileID string `json:"fileId"`
}

func handleIngest(eng *engine.Engine, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID := r.PathValue("fileID")

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		pages := make([]engine.PageText, len(req.Pages))
		for i, p := range req.Pages {
			pages[i] = engine.PageText{PageNumber: p.PageNumber, RawText: p.Text}
		}

		progress := make(chan engine.ProgressEvent, len(pages))
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range progress {
				log.Info("ingest_progress", slog.String("fileId", ev.FileID), slog.Int("page", ev.PageIndex), slog.Int("totalPages", ev.TotalPages))
			}
		}()

		err := eng.Ingest(r.Context(), fileID, pages, nil, progress)
		close(progress)
		<-done

		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, ingestResponse{FileID: fileID})
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Context     string `json:"context"`
	SourcePages []int  `json:"sourcePages"`
	ChunkCount  int    `json:"chunkCount"`
}

func handleQuery(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID := r.PathValue("fileID")

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		result, err := eng.Retrieve(r.Context(), fileID, req.Query)
		if err != nil {
			writeTypedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, queryResponse{Context: result.Context, SourcePages: result.SourcePages, ChunkCount: result.ChunkCount})
	}
}

func handleCacheStats(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.CacheStats())
	}
}

func handleClearMemory(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eng.ClearMemoryCache()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCleanupDisk(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		olderThan := 168 * time.Hour
		if v := r.URL.Query().Get("olderThan"); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				olderThan = d
			}
		}
		removed, err := eng.CleanupDiskCache(olderThan)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeTypedError maps the retrieval core's error taxonomy onto HTTP
// status codes so a caller can distinguish "nothing indexed yet" from a
// transient search failure without parsing the message.
func writeTypedError(w http.ResponseWriter, err error) {
	switch {
	case errs.Is(err, errs.NotIndexed):
		writeError(w, http.StatusNotFound, err)
	case errs.Is(err, errs.SearchFailed):
		writeError(w, http.StatusServiceUnavailable, err)
	case errs.Is(err, errs.TokenLimitExceeded):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
