package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"google.golang.org/api/option"

	"paperlib/features/ask"
	"paperlib/features/document"
	"paperlib/features/flag"
	"paperlib/features/ledger"
	"paperlib/features/stats"
	"paperlib/internal/adapter/gemini"
	"paperlib/internal/chunkindex"
	"paperlib/internal/config"
	"paperlib/internal/content"
	"paperlib/internal/middleware"
	"paperlib/internal/refresh"
	"paperlib/internal/retrieval"
	"paperlib/internal/settings"
	"paperlib/internal/vocabulary"
	"paperlib/internal/worker"
)

// App holds the wired services shared by the HTTP server and the CLI.
type App struct {
	Handler http.Handler

	Documents  *document.Service
	Ledger     *ledger.Service
	Flags      *flag.Service
	Settings   *settings.Service
	Classifier *refresh.Classifier
	Syncer     *refresh.Syncer
	Refresher  *refresh.Refresher
	Retrieval  *retrieval.Service
	Ask        *ask.Handler

	StageConsumer *worker.StageConsumer
	ChunkConsumer *worker.ChunkConsumer

	cfg     *config.Config
	closers []io.Closer
}

// New wires every feature against db and index. geminiOpts are passed to the
// Gemini clients.
func New(cfg *config.Config, db *sql.DB, index chunkindex.Index, geminiOpts ...option.ClientOption) (*App, error) {
	vocab, err := vocabulary.Load(cfg.VocabularyPath)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}

	settingsService := settings.NewService(settings.NewPostgresRepo(db), cfg.GeminiAPIKey)

	docRepo := document.NewPostgresRepo(db)
	ledgerService := ledger.NewService(ledger.NewPostgresRepo(db))
	flagRepo := flag.NewPostgresRepo(db)
	flagService := flag.NewService(flagRepo)
	docService := document.NewService(docRepo, index, ledgerService)

	classifier := refresh.NewClassifier(docRepo, ledgerService, content.NewDirLocator(cfg.ContentDir), flagService)
	syncer := refresh.NewSyncer(docRepo, index, flagService, cfg.SyncBatchSize, cfg.SyncConcurrency)
	refresher := refresh.NewRefresher(classifier, syncer)

	embedder := gemini.NewDynamicEmbedder(settingsService, geminiOpts...)
	generator := gemini.NewGenerator(settingsService, cfg.GenerationModel, geminiOpts...)

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stderr", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stderr)
	}
	retrievalService := retrieval.NewService(embedder, index, generator, settingsService, queryLogger,
		retrieval.Timeouts{Embed: cfg.EmbedTimeout, Generate: cfg.GenerateTimeout})

	a := &App{
		Documents:     docService,
		Ledger:        ledgerService,
		Flags:         flagService,
		Settings:      settingsService,
		Classifier:    classifier,
		Syncer:        syncer,
		Refresher:     refresher,
		Retrieval:     retrievalService,
		Ask:           ask.NewHandler(retrievalService, vocab),
		StageConsumer: worker.NewStageConsumer(ledgerService),
		ChunkConsumer: worker.NewChunkConsumer(embedder, index, cfg.EmbedTimeout).WithRateLimit(cfg.EmbedRateLimit, cfg.EmbedRateBurst),
		cfg:           cfg,
		closers:       []io.Closer{embedder, generator, queryLogger},
	}
	a.Handler = a.routes(
		document.NewHandler(docService),
		flag.NewHandler(flagService),
		settings.NewHandler(settingsService),
		refresh.NewHandler(refresher),
		stats.NewHandler(docRepo, flagRepo, index),
	)
	return a, nil
}

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func (a *App) routes(docs *document.Handler, flags *flag.Handler, set *settings.Handler, ref *refresh.Handler, st *stats.Handler) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.CorrelationID(enableCORS(h)))
	}

	handle("GET /documents", docs.List)
	handle("GET /documents/export", docs.Export)
	handle("GET /documents/{id}", docs.Get)
	handle("PUT /documents/{id}", docs.Put)
	handle("DELETE /documents/{id}", docs.Delete)

	handle("GET /flags", flags.List)
	handle("DELETE /flags/{id}", flags.Resolve)

	handle("GET /settings", set.GetSettings)
	handle("PUT /settings", set.UpdateSettings)

	handle("POST /lifecycle/refresh", ref.Refresh)
	handle("GET /stats", st.GetStats)

	handle("POST /ask", a.Ask.Ask)
	mux.Handle("/mcp", middleware.CorrelationID(a.Ask.MCPHandler()))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Run serves HTTP until ctx is cancelled. Pipeline consumers and the
// periodic refresh start alongside when configured.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.EnableWorkers {
		consumers, err := StartConsumers(a.cfg.NSQLookupd, a.StageConsumer, a.ChunkConsumer)
		if err != nil {
			return err
		}
		defer consumers.Stop()
	}
	a.Refresher.Start(ctx, a.cfg.RefreshInterval)
	if a.cfg.WatchContent {
		go a.watchContent(ctx)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) watchContent(ctx context.Context) {
	w := content.NewWatcher(a.cfg.ContentDir, a.cfg.WatchQuiet, func(ctx context.Context) {
		report, err := a.Refresher.Run(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "refresh after content change failed", "error", err)
			return
		}
		slog.InfoContext(ctx, "refresh after content change complete",
			"classified", report.Classify.Updated, "synced", report.Sync.Updated)
	})
	if err := w.Run(ctx); err != nil {
		slog.ErrorContext(ctx, "content watcher stopped", "error", err)
	}
}

func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
