package quantizer_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/floats"

	"github.com/papercomputeco/sway/pkg/quantizer"
	"github.com/papercomputeco/sway/pkg/vector"
)

func reconstructionError(q interface {
	Compress([]float32) (quantizer.Codes, error)
	Decompress(quantizer.Codes) ([]float32, error)
}, vectors [][]float32) float64 {
	var total float64
	for _, v := range vectors {
		codes, err := q.Compress(v)
		Expect(err).NotTo(HaveOccurred())
		out, err := q.Decompress(codes)
		Expect(err).NotTo(HaveOccurred())
		total += floats.Distance(vector.Float64s(v), vector.Float64s(out), 2)
	}
	return total / float64(len(vectors))
}

var _ = Describe("Product", func() {
	It("applies defaults", func() {
		p, err := quantizer.NewProduct(quantizer.ProductConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.M()).To(Equal(quantizer.DefaultM))
		Expect(p.Ks()).To(Equal(quantizer.DefaultKs))
	})

	It("requires dimensions divisible by M", func() {
		p, err := quantizer.NewProduct(quantizer.ProductConfig{M: 3, Ks: 2, Seed: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Train(randomVectors(10, 8, 1))).To(MatchError(quantizer.ErrDimension))
	})

	It("requires at least Ks training vectors", func() {
		p, err := quantizer.NewProduct(quantizer.ProductConfig{M: 2, Ks: 16, Seed: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Train(randomVectors(10, 8, 1))).To(MatchError(quantizer.ErrTooFewVectors))
	})

	It("fails before training", func() {
		p, err := quantizer.NewProduct(quantizer.ProductConfig{M: 2, Ks: 4})
		Expect(err).NotTo(HaveOccurred())
		_, err = p.Compress(make([]float32, 8))
		Expect(err).To(MatchError(quantizer.ErrUntrained))
		_, err = p.Decompress(quantizer.Codes{})
		Expect(err).To(MatchError(quantizer.ErrUntrained))
	})

	Context("when trained", func() {
		var (
			p       *quantizer.Product
			vectors [][]float32
		)

		BeforeEach(func() {
			var err error
			p, err = quantizer.NewProduct(quantizer.ProductConfig{M: 4, Ks: 16, Seed: 42})
			Expect(err).NotTo(HaveOccurred())
			vectors = randomVectors(300, 16, 9)
			Expect(p.Train(vectors)).To(Succeed())
		})

		It("emits one primary and one residual code per subspace", func() {
			c, err := p.Compress(vectors[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Primary).To(HaveLen(4))
			Expect(c.Residual).To(HaveLen(4))
			Expect(p.Ds()).To(Equal(4))
		})

		It("exposes flattened codebooks", func() {
			Expect(p.Codebook()).To(HaveLen(4))
			Expect(p.Codebook()[0]).To(HaveLen(16 * 4))
			Expect(p.ResidualCodebook()).To(HaveLen(4))
		})

		It("reconstructs better than the primary codebook alone", func() {
			withResidual := reconstructionError(p, vectors)

			primaryOnly := reconstructionError(primaryOnlyQuantizer{p}, vectors)
			Expect(withResidual).To(BeNumerically("<", primaryOnly))
		})

		It("rejects vectors of the wrong size", func() {
			_, err := p.Compress(make([]float32, 12))
			Expect(err).To(MatchError(quantizer.ErrDimension))
		})

		It("rejects codes past Ks", func() {
			_, err := p.Decompress(quantizer.Codes{
				Primary:  []uint16{0, 0, 0, 99},
				Residual: []uint16{0, 0, 0, 0},
			})
			Expect(err).To(MatchError(quantizer.ErrCodeRange))
		})
	})
})

// primaryOnlyQuantizer drops the residual stage by decoding with residual
// codes that point at the centroid closest to zero.
type primaryOnlyQuantizer struct {
	p *quantizer.Product
}

func (q primaryOnlyQuantizer) Compress(v []float32) (quantizer.Codes, error) {
	c, err := q.p.Compress(v)
	if err != nil {
		return c, err
	}
	c.Residual = zeroResidualCodes(q.p)
	return c, nil
}

func (q primaryOnlyQuantizer) Decompress(c quantizer.Codes) ([]float32, error) {
	return q.p.Decompress(c)
}

func zeroResidualCodes(p *quantizer.Product) []uint16 {
	book := p.ResidualCodebook()
	codes := make([]uint16, len(book))
	for m, flat := range book {
		best, bestNorm := 0, -1.0
		for k := 0; k < p.Ks(); k++ {
			n := floats.Norm(vector.Float64s(flat[k*p.Ds():(k+1)*p.Ds()]), 2)
			if bestNorm < 0 || n < bestNorm {
				best, bestNorm = k, n
			}
		}
		codes[m] = uint16(best)
	}
	return codes
}
