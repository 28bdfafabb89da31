// Package quantizecmder provides the quantize command, which trains a
// quantizer on a file of vectors and reports how well it reconstructs them.
package quantizecmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/papercomputeco/sway/pkg/cliui"
	"github.com/papercomputeco/sway/pkg/quantizer"
	"github.com/papercomputeco/sway/pkg/vector"
)

const quantizeLongDesc string = `Train a quantizer on a file of vectors and report its reconstruction error.

The file is a JSON array of vectors, either bare arrays of numbers or objects
with an "embedding" field. Use it to pick the quantizer type and settings
before a vector store is registered with the backend.

Examples:
  sway quantize vectors.json
  sway quantize vectors.json --type product --m 8 --ks 256`

const quantizeShortDesc string = "Train a quantizer and report reconstruction error"

type quantizeCommander struct {
	kind   string
	levels int
	m      int
	ks     int
	seed   uint64
	asJSON bool
}

// Report summarizes a training run.
type Report struct {
	Type        string  `json:"type"`
	Vectors     int     `json:"vectors"`
	Dimensions  int     `json:"dimensions"`
	MSE         float64 `json:"mse"`
	MaxError    float64 `json:"max_error"`
	BytesIn     int     `json:"bytes_in"`
	BytesOut    int     `json:"bytes_out"`
	Compression float64 `json:"compression"`
}

func NewQuantizeCmd() *cobra.Command {
	cmder := &quantizeCommander{}

	cmd := &cobra.Command{
		Use:   "quantize <file>",
		Short: quantizeShortDesc,
		Long:  quantizeLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vectors, err := readVectors(args[0])
			if err != nil {
				return err
			}
			return cmder.run(cmd.OutOrStdout(), vectors)
		},
	}

	cmd.Flags().StringVarP(&cmder.kind, "type", "t", "scalar", "Quantizer type (scalar, product)")
	cmd.Flags().IntVar(&cmder.levels, "levels", quantizer.DefaultLevels, "Scalar quantizer buckets")
	cmd.Flags().IntVar(&cmder.m, "m", quantizer.DefaultM, "Product quantizer subspaces")
	cmd.Flags().IntVar(&cmder.ks, "ks", quantizer.DefaultKs, "Product quantizer centroids per subspace")
	cmd.Flags().Uint64Var(&cmder.seed, "seed", 0, "Training seed, 0 for random")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func (c *quantizeCommander) run(w io.Writer, vectors [][]float32) error {
	if len(vectors) == 0 {
		return errors.New("no vectors to train on")
	}
	dims := len(vectors[0])

	var (
		report = Report{Type: c.kind, Vectors: len(vectors), Dimensions: dims, BytesIn: len(vectors) * dims * 4}
		decode func(i int) ([]float32, error)
	)

	out := w
	if c.asJSON {
		out = io.Discard
	}

	switch c.kind {
	case "scalar":
		q, err := quantizer.NewScalar(c.levels)
		if err != nil {
			return err
		}
		var codes [][]uint16
		err = cliui.Step(out, "Training scalar quantizer", func() error {
			if err := q.Train(vectors); err != nil {
				return err
			}
			codes, err = q.CompressAll(vectors)
			return err
		})
		if err != nil {
			return err
		}
		report.BytesOut = len(codes) * dims * 2
		decode = func(i int) ([]float32, error) { return q.Decompress(codes[i]) }

	case "product":
		q, err := quantizer.NewProduct(quantizer.ProductConfig{M: c.m, Ks: c.ks, Seed: c.seed})
		if err != nil {
			return err
		}
		var codes []quantizer.Codes
		err = cliui.Step(out, "Training product quantizer", func() error {
			if err := q.Train(vectors); err != nil {
				return err
			}
			codes, err = q.CompressAll(vectors)
			return err
		})
		if err != nil {
			return err
		}
		report.BytesOut = len(codes) * q.M() * 2 * 2
		decode = func(i int) ([]float32, error) { return q.Decompress(codes[i]) }

	default:
		return fmt.Errorf("unknown quantizer type %q (available: scalar, product)", c.kind)
	}

	var sum float64
	for i, v := range vectors {
		rec, err := decode(i)
		if err != nil {
			return fmt.Errorf("decompressing vector %d: %w", i, err)
		}
		sq := floats.Distance(vector.Float64s(v), vector.Float64s(rec), 2)
		sq *= sq
		sum += sq / float64(dims)
		report.MaxError = max(report.MaxError, sq/float64(dims))
	}
	report.MSE = sum / float64(len(vectors))
	report.Compression = float64(report.BytesIn) / float64(report.BytesOut)

	if c.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintln(w)
	cliui.KeyValues(w, []cliui.KV{
		{Key: "type", Value: report.Type},
		{Key: "vectors", Value: strconv.Itoa(report.Vectors)},
		{Key: "dimensions", Value: strconv.Itoa(report.Dimensions)},
		{Key: "mse", Value: strconv.FormatFloat(report.MSE, 'g', 6, 64)},
		{Key: "max_error", Value: strconv.FormatFloat(report.MaxError, 'g', 6, 64)},
		{Key: "compression", Value: fmt.Sprintf("%.1fx (%d -> %d bytes)", report.Compression, report.BytesIn, report.BytesOut)},
	})
	fmt.Fprintln(w)
	return nil
}

// readVectors reads a JSON array of vectors or of objects with an embedding.
func readVectors(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vectors: %w", err)
	}

	var bare [][]float32
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	var docs []struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decoding vectors from %s: %w", path, err)
	}

	out := make([][]float32, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) > 0 {
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}
