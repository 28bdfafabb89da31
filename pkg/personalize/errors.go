package personalize

import "errors"

var (
	// ErrBiasRequired is returned when a biased batch is requested without
	// bias vectors.
	ErrBiasRequired = errors.New("personalize: bias vectors and weights must be provided for biased batch")

	// ErrUnknownVectorStore is returned when a session points at a vector
	// store that was never added.
	ErrUnknownVectorStore = errors.New("personalize: vector store not added")

	// ErrNoTrainingVectors is returned when sampling a vector store for
	// quantizer training returns no embeddings.
	ErrNoTrainingVectors = errors.New("personalize: vector store returned no embeddings to train on")
)
