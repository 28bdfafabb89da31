package blueprint

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/sway/pkg/signal"
)

// BatchType is the batch-selection mode of a vertex.
type BatchType string

const (
	BatchBiased       BatchType = "biased"
	BatchSampled      BatchType = "sampled"
	BatchRandom       BatchType = "random"
	BatchPersonalized BatchType = "personalized"
)

// ParseBatchType parses a batch type case-insensitively.
func ParseBatchType(s string) (BatchType, error) {
	bt := BatchType(strings.ToLower(strings.TrimSpace(s)))
	if !bt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidBatchType, s)
	}
	return bt, nil
}

// Valid reports whether bt is one of the known batch types.
func (bt BatchType) Valid() bool {
	switch bt {
	case BatchBiased, BatchSampled, BatchRandom, BatchPersonalized:
		return true
	}
	return false
}

func (bt BatchType) String() string {
	return string(bt)
}

// Params are the tunables that govern how a batch is built from a vertex.
type Params struct {
	Mu      float64 `json:"mu"`
	Alpha   float64 `json:"alpha"`
	R       float64 `json:"r"`
	LastN   float64 `json:"last_n"`
	NTopics float64 `json:"n_topics"`

	RemoveDuplicates bool `json:"remove_duplicates"`
	ApplyMMR         bool `json:"apply_mmr"`

	// ApplyThreshold is the configured score threshold. Zero disables the
	// threshold stage.
	ApplyThreshold float64 `json:"apply_threshold"`
}

// DefaultParams returns parameters with every numeric field zero and
// duplicate removal enabled.
func DefaultParams() Params {
	return Params{RemoveDuplicates: true}
}

// Vertex is a blueprint state. Vertices are immutable once added.
type Vertex struct {
	Name      string    `json:"name"`
	BatchType BatchType `json:"batch_type"`
	Params    Params    `json:"params"`
}

// Edge is a transition between two vertices keyed by a signal.
type Edge struct {
	Name   string        `json:"name"`
	Signal signal.Signal `json:"signal"`
	Start  *Vertex       `json:"-"`
	End    *Vertex       `json:"-"`
}

// StepResult is the outcome of a single state transition.
type StepResult struct {
	// Source is the vertex the transition started from.
	Source *Vertex

	// Destination is the vertex the session moves to.
	Destination *Vertex

	// BatchType and Params are taken from the source vertex: they govern the
	// batch built for this transition.
	BatchType BatchType
	Params    Params
}
