package vector

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/ai"
)

const defaultLocalDimension = 384

// LocalEmbeddingService is a deterministic, dependency-free
// ai.EmbeddingPort: token-hashed bag-of-words projected into a fixed
// dimension and L2-normalized. It exists for tests and for
// deployments that want matching without a paid embedding provider;
// quality is far below a real model.
type LocalEmbeddingService struct {
	dimension int
	log       *logrus.Logger
}

// NewLocalEmbeddingService builds the service. Non-positive dimensions
// fall back to the default.
func NewLocalEmbeddingService(dimension int, logger *logrus.Logger) *LocalEmbeddingService {
	if dimension <= 0 {
		dimension = defaultLocalDimension
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &LocalEmbeddingService{dimension: dimension, log: logger}
}

// GetEmbeddingDimension returns the configured dimension.
func (s *LocalEmbeddingService) GetEmbeddingDimension() int { return s.dimension }

// Provider implements ai.EmbeddingPort.
func (s *LocalEmbeddingService) Provider() string { return "local" }

// Model implements ai.EmbeddingPort.
func (s *LocalEmbeddingService) Model() string { return "local-hash-v1" }

// EmbedText implements ai.EmbeddingPort.
func (s *LocalEmbeddingService) EmbedText(ctx context.Context, text string) (*ai.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.New(apperrors.ErrorTypeEmbeddingError, "empty embedding input")
	}
	return &ai.EmbeddingResult{
		Vectors:  [][]float32{s.embed(text)},
		Provider: s.Provider(),
		Model:    s.Model(),
	}, nil
}

// EmbedBatch implements ai.EmbeddingPort.
func (s *LocalEmbeddingService) EmbedBatch(ctx context.Context, texts []string) (*ai.EmbeddingResult, error) {
	if len(texts) == 0 {
		return nil, apperrors.New(apperrors.ErrorTypeEmbeddingError, "empty embedding batch")
	}
	if len(texts) > ai.MaxEmbedBatch {
		return nil, apperrors.Newf(apperrors.ErrorTypeEmbeddingError, "batch of %d exceeds limit %d", len(texts), ai.MaxEmbedBatch)
	}

	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = s.embed(t)
	}
	return &ai.EmbeddingResult{
		Vectors:  vectors,
		Provider: s.Provider(),
		Model:    s.Model(),
	}, nil
}

func (s *LocalEmbeddingService) embed(text string) []float32 {
	vec := make([]float64, s.dimension)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		idx := int(binary.BigEndian.Uint32(sum[0:4])) % s.dimension
		if idx < 0 {
			idx += s.dimension
		}
		sign := 1.0
		if sum[4]&1 == 1 {
			sign = -1.0
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, s.dimension)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
