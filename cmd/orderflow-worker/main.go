// Command orderflow-worker runs the background processing pipeline:
// it consumes queued tasks (extraction, export, embedding, ack
// polling), schedules periodic ack polls for every active dropzone
// connection, and exposes Prometheus metrics.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/embeddings"
	langopenai "github.com/tmc/langchaingo/llms/openai"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aliuyar1234/orderflow/internal/config"
	"github.com/aliuyar1234/orderflow/internal/database"
	"github.com/aliuyar1234/orderflow/pkg/ai"
	"github.com/aliuyar1234/orderflow/pkg/ai/llm"
	"github.com/aliuyar1234/orderflow/pkg/ai/providers"
	"github.com/aliuyar1234/orderflow/pkg/customerdetect"
	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/draftorder"
	"github.com/aliuyar1234/orderflow/pkg/erpexport"
	"github.com/aliuyar1234/orderflow/pkg/erpexport/secretbox"
	"github.com/aliuyar1234/orderflow/pkg/extraction"
	"github.com/aliuyar1234/orderflow/pkg/matching"
	"github.com/aliuyar1234/orderflow/pkg/metrics"
	"github.com/aliuyar1234/orderflow/pkg/objectstore"
	"github.com/aliuyar1234/orderflow/pkg/pipeline"
	"github.com/aliuyar1234/orderflow/pkg/repository"
	"github.com/aliuyar1234/orderflow/pkg/storage/vector"
	"github.com/aliuyar1234/orderflow/pkg/validation"
	"github.com/aliuyar1234/orderflow/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (environment-only when empty)")
	flag.Parse()

	logger := logrus.New()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("configuration load failed")
	}
	configureLogger(logger, cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsServer := metrics.NewServer(cfg.Server.MetricsPort, logger)
	metricsServer.StartAsync()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Stop(shutdownCtx)
	}()

	// Database: one pgx pool for vector search, one database/sql handle
	// for the sqlx repositories, same DSN.
	dbConfig := database.DefaultConfig()
	dbConfig.LoadFromEnv()
	pool, err := database.NewPool(ctx, dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("database pool failed")
	}
	defer pool.Close()

	sqlDB, err := sql.Open("pgx", dbConfig.ConnectionString())
	if err != nil {
		logger.WithError(err).Fatal("sql handle failed")
	}
	defer sqlDB.Close()
	db := sqlx.NewDb(sqlDB, "pgx")

	// Object store.
	basePath := cfg.ObjectStore.BasePath
	if basePath == "" {
		basePath = "./data/objects"
	}
	store, err := objectstore.NewFilesystemStore(basePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("object store init failed")
	}

	// AI stack: ledger, budget gate, LLM provider, gated client.
	ledger := repository.NewSQLLedger(db)
	gate := ai.NewBudgetGate(ledger)

	llmPort, err := buildLLMPort(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("LLM provider init failed")
	}
	llmClient := llm.NewClient(llmPort, ledger, gate, store, logger)

	embedPort, err := buildEmbeddingPort(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("embedding provider init failed")
	}
	gatedEmbedder := ai.NewGatedEmbedder(embedPort, ledger, gate)

	// Vector store and embedding service.
	vectorStore, err := vector.NewFactory(&vector.Config{Enabled: true, Backend: "pgvector"}, pool, logger).CreateStore()
	if err != nil {
		logger.WithError(err).Fatal("vector store init failed")
	}
	embeddingService := vector.NewProductEmbeddingService(vectorStore, gatedEmbedder, logger)

	// Repositories.
	catalog := repository.NewSQLCatalog(db)
	tenants := repository.NewSQLTenants(db)
	documents := repository.NewSQLDocuments(db)
	customers := repository.NewSQLCustomers(db)
	draftsRepo := repository.NewSQLDrafts(db)
	issues := repository.NewSQLIssues(db)
	exports := repository.NewSQLExports(db)

	box, err := secretbox.New([]byte(os.Getenv("ERP_CONFIG_SECRET")))
	if err != nil {
		logger.WithError(err).Fatal("ERP config secret missing or invalid (ERP_CONFIG_SECRET)")
	}
	connections := repository.NewSQLConnections(db, box)

	// Engines.
	router := extraction.NewRouter(llmClient, nil, logger)
	matcher := matching.NewEngine(catalog, catalog, catalog, vectorStore, matcherEmbedder{gatedEmbedder}, logger)
	learner := matching.NewLearner(catalog, draftsRepo, logger)
	validator := validation.NewEngine(issues, logger)
	drafts := draftorder.NewService(draftsRepo, draftsRepo, logger)
	connector := erpexport.NewConnector(store, exports, logger)

	pipe := pipeline.New(pipeline.Config{
		Tenants:     tenants,
		Documents:   documents,
		Messages:    documents,
		Runs:        documents,
		Customers:   customers,
		Products:    catalog,
		Connections: connections,
		Drafts:      drafts,
		Store:       store,
		Router:      router,
		Detector:    customerdetect.NewDetector(logger),
		Matcher:     matcher,
		Learner:     learner,
		Validator:   validator,
		Prices:      catalog,
		Embeddings:  embeddingService,
		Connector:   connector,
		Logger:      logger,
	})
	pipe.WithPoller(erpexport.NewPoller(exports, pipe, logger))

	// Queue and orchestrator.
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr()})
	defer redisClient.Close()
	queue := worker.NewRedisQueue(redisClient)

	orchestrator := worker.NewOrchestrator(queue, cfg.Worker.Concurrency, cfg.Worker.PollInterval, nil, logger)
	worker.RegisterPipelineHandlers(orchestrator, pipe, queue)

	go scheduleAckPolls(ctx, queue, connections, cfg.Worker.AckPollInterval, logger)

	logger.WithFields(logrus.Fields{
		"concurrency":   cfg.Worker.Concurrency,
		"poll_interval": cfg.Worker.PollInterval.String(),
		"llm_provider":  cfg.LLM.Provider,
	}).Info("orderflow worker starting")

	orchestrator.Run(ctx)
	logger.Info("orderflow worker stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

func buildLLMPort(ctx context.Context, cfg *config.Config) (ai.LLMPort, error) {
	switch cfg.LLM.Provider {
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return providers.NewBedrockProvider(bedrockruntime.NewFromConfig(awsCfg), cfg.LLM.Model, cfg.LLM.VisionModel), nil
	default:
		return providers.NewAnthropicProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.VisionModel, cfg.LLM.Timeout), nil
	}
}

func buildEmbeddingPort(cfg *config.Config, logger *logrus.Logger) (ai.EmbeddingPort, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		client, err := langopenai.New(langopenai.WithEmbeddingModel(cfg.Embedding.Model))
		if err != nil {
			return nil, err
		}
		embedder, err := embeddings.NewEmbedder(client)
		if err != nil {
			return nil, err
		}
		return providers.NewLangchainEmbedder(embedder, "openai", cfg.Embedding.Model), nil
	default:
		logger.Warn("no embedding provider configured, using local hash embeddings")
		return vector.NewLocalEmbeddingService(cfg.Embedding.Dim, logger), nil
	}
}

// matcherEmbedder adapts the gated embedder to the matching engine's
// query interface.
type matcherEmbedder struct {
	embedder *ai.GatedEmbedder
}

func (m matcherEmbedder) EmbedText(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings, text string) ([]float32, error) {
	result, err := m.embedder.EmbedText(ctx, tenantID, settings, text)
	if err != nil {
		return nil, err
	}
	return result.Vectors[0], nil
}

// scheduleAckPolls enqueues one poll_acks task per active dropzone
// connection every interval. The task's unique key keeps the queue
// from stacking polls behind a slow cycle.
func scheduleAckPolls(ctx context.Context, queue worker.Queue, connections *repository.SQLConnections, interval time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		conns, err := connections.ListActiveDropzones(ctx)
		if err != nil {
			logger.WithError(err).Warn("dropzone connection listing failed")
			continue
		}

		for _, conn := range conns {
			task, err := worker.NewTask(conn.TenantID, worker.TaskPollAcks, worker.PollAcksPayload{ConnectionID: conn.ID})
			if err != nil {
				continue
			}
			task.UniqueKey = "poll_acks|" + conn.ID.String()
			if err := queue.Enqueue(ctx, task); err != nil {
				logger.WithError(err).Warn("ack poll enqueue failed")
			}
		}
	}
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}
