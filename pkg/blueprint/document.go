package blueprint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/sway/pkg/signal"
)

// Document is the serialized blueprint definition accepted from presets,
// files and the backend.
type Document struct {
	Signals []signal.Signal `json:"signals,omitempty" yaml:"signals,omitempty"`
	Nodes   []NodeDoc       `json:"nodes" yaml:"nodes"`
	Edges   []EdgeDoc       `json:"edges" yaml:"edges"`
}

// NodeDoc declares a vertex.
type NodeDoc struct {
	Name      string    `json:"name" yaml:"name"`
	BatchType string    `json:"batch_type" yaml:"batch_type"`
	Params    ParamsDoc `json:"params" yaml:"params"`
}

// EdgeDoc declares a transition. EdgeType is a signal label.
type EdgeDoc struct {
	Name     string `json:"name" yaml:"name"`
	EdgeType string `json:"edge_type" yaml:"edge_type"`
	Start    string `json:"start" yaml:"start"`
	End      string `json:"end" yaml:"end"`
}

// ParamsDoc is the serialized form of Params. Omitted fields take the
// defaults from DefaultParams.
type ParamsDoc struct {
	Mu               float64   `json:"mu,omitempty" yaml:"mu,omitempty"`
	Alpha            float64   `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	R                float64   `json:"r,omitempty" yaml:"r,omitempty"`
	LastN            float64   `json:"last_n,omitempty" yaml:"last_n,omitempty"`
	NTopics          float64   `json:"n_topics,omitempty" yaml:"n_topics,omitempty"`
	RemoveDuplicates *bool     `json:"remove_duplicates,omitempty" yaml:"remove_duplicates,omitempty"`
	ApplyMMR         bool      `json:"apply_mmr,omitempty" yaml:"apply_mmr,omitempty"`
	ApplyThreshold   Threshold `json:"apply_threshold,omitempty" yaml:"apply_threshold,omitempty"`
}

// Params converts the document form into Params.
func (p ParamsDoc) Params() Params {
	out := DefaultParams()
	out.Mu = p.Mu
	out.Alpha = p.Alpha
	out.R = p.R
	out.LastN = p.LastN
	out.NTopics = p.NTopics
	out.ApplyMMR = p.ApplyMMR
	out.ApplyThreshold = float64(p.ApplyThreshold)
	if p.RemoveDuplicates != nil {
		out.RemoveDuplicates = *p.RemoveDuplicates
	}
	return out
}

// Threshold accepts either a number or an [enabled, value] pair. A disabled
// pair decodes to zero.
type Threshold float64

func (t *Threshold) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*t = Threshold(n)
		return nil
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil || len(pair) != 2 {
		return fmt.Errorf("blueprint: apply_threshold must be a number or [enabled, value]")
	}

	var enabled bool
	if err := json.Unmarshal(pair[0], &enabled); err != nil {
		return fmt.Errorf("blueprint: apply_threshold flag: %w", err)
	}
	if err := json.Unmarshal(pair[1], &n); err != nil {
		return fmt.Errorf("blueprint: apply_threshold value: %w", err)
	}

	*t = 0
	if enabled {
		*t = Threshold(n)
	}
	return nil
}

func (t *Threshold) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var n float64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("blueprint: apply_threshold: %w", err)
		}
		*t = Threshold(n)
		return nil

	case yaml.SequenceNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("blueprint: apply_threshold pair must have two entries")
		}
		var enabled bool
		var n float64
		if err := node.Content[0].Decode(&enabled); err != nil {
			return fmt.Errorf("blueprint: apply_threshold flag: %w", err)
		}
		if err := node.Content[1].Decode(&n); err != nil {
			return fmt.Errorf("blueprint: apply_threshold value: %w", err)
		}
		*t = 0
		if enabled {
			*t = Threshold(n)
		}
		return nil

	default:
		return fmt.Errorf("blueprint: apply_threshold must be a number or [enabled, value]")
	}
}

// Build constructs and validates a blueprint from the document. Either every
// vertex and edge is accepted or an error is returned.
func (d Document) Build() (*Blueprint, error) {
	table, err := signal.NewTable(d.Signals...)
	if err != nil {
		return nil, err
	}

	b := New(table)

	for _, n := range d.Nodes {
		bt, err := ParseBatchType(n.BatchType)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.Name, err)
		}
		if _, err := b.AddVertex(n.Name, bt, n.Params.Params()); err != nil {
			return nil, err
		}
	}

	for _, e := range d.Edges {
		if _, err := b.AddEdge(e.Name, e.EdgeType, e.Start, e.End); err != nil {
			return nil, err
		}
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}

	return b, nil
}

// Parse builds a blueprint from a document.
func Parse(d Document) (*Blueprint, error) {
	return d.Build()
}

// DecodeJSON decodes a JSON document without building it.
func DecodeJSON(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, fmt.Errorf("decoding blueprint JSON: %w", err)
	}
	return d, nil
}

// DecodeYAML decodes a YAML document without building it.
func DecodeYAML(data []byte) (Document, error) {
	var d Document
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Document{}, fmt.Errorf("decoding blueprint YAML: %w", err)
	}
	return d, nil
}

// ParseJSON decodes and builds a JSON document.
func ParseJSON(data []byte) (*Blueprint, error) {
	d, err := DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	return d.Build()
}

// ParseYAML decodes and builds a YAML document.
func ParseYAML(data []byte) (*Blueprint, error) {
	d, err := DecodeYAML(data)
	if err != nil {
		return nil, err
	}
	return d.Build()
}

// ReadFile decodes a document from a .json, .yaml or .yml file.
func ReadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading blueprint: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DecodeJSON(data)
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return Document{}, fmt.Errorf("unsupported blueprint file extension: %q", filepath.Ext(path))
	}
}

// ParseFile reads and builds a blueprint document file.
func ParseFile(path string) (*Blueprint, error) {
	d, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return d.Build()
}

// IsDocumentFile reports whether path has a supported blueprint extension.
func IsDocumentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
