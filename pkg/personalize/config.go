package personalize

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/sway/pkg/backend"
	"github.com/papercomputeco/sway/pkg/logger"
)

const (
	DefaultBatchSize          = 10
	DefaultQuantizerTrainSize = 100

	// QuantizerScalar and QuantizerProduct select how new vector stores are
	// sketched before registration.
	QuantizerScalar  = "scalar"
	QuantizerProduct = "product"

	// trainTopK is the top_k of every quantizer training query.
	trainTopK = 5

	// maxTrainQueries caps the number of training queries.
	maxTrainQueries = 500
)

// Config is the configuration for a Personalizer.
type Config struct {
	// BatchSize is the number of items returned when a batch call does not
	// say.
	BatchSize int

	// QuantizerTrainSize is the number of vectors sampled to train the
	// quantizer of a new vector store.
	QuantizerTrainSize int

	// QuantizerType is QuantizerScalar or QuantizerProduct.
	QuantizerType string

	// EnableHistory excludes already served content from later batches.
	EnableHistory bool

	// EmbeddingLastN bounds UserEmbeddings.
	EmbeddingLastN int

	// M and Ks configure the product quantizer.
	M  int
	Ks int

	Logger *slog.Logger
}

func (c *Config) applyDefaults() error {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.QuantizerTrainSize <= 0 {
		c.QuantizerTrainSize = DefaultQuantizerTrainSize
	}
	if c.EmbeddingLastN <= 0 {
		c.EmbeddingLastN = backend.DefaultEmbeddingLastN
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	switch c.QuantizerType {
	case "":
		c.QuantizerType = QuantizerScalar
	case QuantizerScalar, QuantizerProduct:
	default:
		return fmt.Errorf("personalize: invalid quantizer type %q", c.QuantizerType)
	}
	return nil
}

// trainQueries is the number of random queries issued to sample training
// vectors.
func (c *Config) trainQueries() int {
	return max(min(c.QuantizerTrainSize/trainTopK, maxTrainQueries), 1)
}
