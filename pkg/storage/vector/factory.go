package vector

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Config selects the embedding-store backend.
type Config struct {
	Enabled bool
	Backend string // "memory" or "pgvector"
}

// Factory builds EmbeddingStore instances from configuration.
type Factory struct {
	config *Config
	pool   *pgxpool.Pool
	log    *logrus.Logger
}

// NewFactory builds a Factory. Nil parameters degrade to a disabled,
// memory-backed factory.
func NewFactory(config *Config, pool *pgxpool.Pool, logger *logrus.Logger) *Factory {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Factory{config: config, pool: pool, log: logger}
}

// CreateStore returns the configured EmbeddingStore. A disabled config
// or unknown backend falls back to the memory store; pgvector without
// a pool is an error.
func (f *Factory) CreateStore() (EmbeddingStore, error) {
	if !f.config.Enabled {
		f.log.Debug("vector store disabled, using memory backend")
		return NewMemoryVectorStore(f.log), nil
	}

	switch f.config.Backend {
	case "pgvector":
		if f.pool == nil {
			return nil, fmt.Errorf("pgvector backend requires a database pool")
		}
		return NewPostgresVectorStore(f.pool, f.log), nil
	case "", "memory":
		return NewMemoryVectorStore(f.log), nil
	default:
		f.log.WithField("backend", f.config.Backend).Warn("unknown vector backend, falling back to memory")
		return NewMemoryVectorStore(f.log), nil
	}
}
