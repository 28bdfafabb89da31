package quantizecmder_test

import (
	"bytes"
	"encoding/json"
	"math/rand/v2"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	quantizecmder "github.com/papercomputeco/sway/cmd/sway/quantize"
)

var _ = Describe("quantize command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	writeJSON := func(name string, v any) string {
		data, err := json.Marshal(v)
		Expect(err).NotTo(HaveOccurred())
		path := filepath.Join(tmpDir, name)
		Expect(os.WriteFile(path, data, 0o600)).To(Succeed())
		return path
	}

	vectors := func(n, dim int) [][]float32 {
		rng := rand.New(rand.NewPCG(1, 2))
		out := make([][]float32, n)
		for i := range out {
			out[i] = make([]float32, dim)
			for j := range out[i] {
				out[i][j] = rng.Float32()*2 - 1
			}
		}
		return out
	}

	execute := func(args ...string) (quantizecmder.Report, error) {
		cmd := quantizecmder.NewQuantizeCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--json"))
		if err := cmd.Execute(); err != nil {
			return quantizecmder.Report{}, err
		}

		var r quantizecmder.Report
		Expect(json.Unmarshal(out.Bytes(), &r)).To(Succeed())
		return r, nil
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "sway-quantize-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(tmpDir) })
		out = &bytes.Buffer{}
	})

	It("reports scalar reconstruction error on bare vectors", func() {
		path := writeJSON("bare.json", vectors(64, 8))

		r, err := execute(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Type).To(Equal("scalar"))
		Expect(r.Vectors).To(Equal(64))
		Expect(r.Dimensions).To(Equal(8))
		Expect(r.MSE).To(BeNumerically("<", 0.01))
		Expect(r.Compression).To(BeNumerically("~", 2.0, 0.001))
	})

	It("reads objects with an embedding field", func() {
		var docs []map[string]any
		for i, v := range vectors(32, 4) {
			docs = append(docs, map[string]any{"id": i, "embedding": v})
		}
		path := writeJSON("docs.json", docs)

		r, err := execute(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Vectors).To(Equal(32))
	})

	It("trains a product quantizer", func() {
		path := writeJSON("bare.json", vectors(64, 8))

		r, err := execute(path, "--type", "product", "--m", "2", "--ks", "8", "--seed", "7")
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Type).To(Equal("product"))
		Expect(r.BytesOut).To(Equal(64 * 2 * 2 * 2))
		Expect(r.MSE).To(BeNumerically(">", 0))
	})

	It("fails when the product quantizer cannot split the dimensions", func() {
		path := writeJSON("bare.json", vectors(64, 9))

		_, err := execute(path, "--type", "product", "--m", "2", "--ks", "8")
		Expect(err).To(HaveOccurred())
	})

	It("rejects unknown types", func() {
		path := writeJSON("bare.json", vectors(4, 2))

		_, err := execute(path, "--type", "binary")
		Expect(err).To(MatchError(ContainSubstring("unknown quantizer type")))
	})

	It("rejects empty files", func() {
		path := writeJSON("empty.json", [][]float32{})

		_, err := execute(path)
		Expect(err).To(MatchError(ContainSubstring("no vectors")))
	})
})
