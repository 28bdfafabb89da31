package quantizer

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/papercomputeco/sway/pkg/vector"
)

const (
	DefaultM             = 32
	DefaultKs            = 512
	DefaultMaxIterations = 20
)

// ProductConfig configures a product quantizer.
type ProductConfig struct {
	// M is the number of subspaces. Vector dimensions must be divisible by M.
	M int

	// Ks is the number of centroids per subspace.
	Ks int

	// MaxIterations caps k-means refinement rounds.
	MaxIterations int

	// Seed makes training reproducible. Zero picks a random seed.
	Seed uint64
}

// Codes is a compressed vector: one primary and one residual centroid index
// per subspace.
type Codes struct {
	Primary  []uint16 `json:"primary"`
	Residual []uint16 `json:"residual"`
}

// Product is a product quantizer with residual refinement.
type Product struct {
	cfg ProductConfig
	rng *rand.Rand

	ds       int
	primary  [][][]float64 // [M][Ks][Ds]
	residual [][][]float64
}

// NewProduct creates an untrained product quantizer. Zero config fields take
// the package defaults.
func NewProduct(cfg ProductConfig) (*Product, error) {
	if cfg.M <= 0 {
		cfg.M = DefaultM
	}
	if cfg.Ks <= 0 {
		cfg.Ks = DefaultKs
	}
	if cfg.Ks > 1<<16 {
		return nil, fmt.Errorf("quantizer: %d centroids do not fit a uint16 code", cfg.Ks)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Product{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (p *Product) M() int { return p.cfg.M }
func (p *Product) Ks() int { return p.cfg.Ks }

// Ds is the subvector size, known after training.
func (p *Product) Ds() int { return p.ds }

// Trained reports whether Train has succeeded.
func (p *Product) Trained() bool {
	return p.primary != nil
}

// Train learns the primary codebook over the vectors and a residual codebook
// over what the primary codebook fails to reconstruct.
func (p *Product) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return ErrNoTrainingData
	}

	dim := len(vectors[0])
	if dim == 0 || dim%p.cfg.M != 0 {
		return fmt.Errorf("%w: %d is not divisible by M=%d", ErrDimension, dim, p.cfg.M)
	}
	if len(vectors) < p.cfg.Ks {
		return fmt.Errorf("%w: %d < Ks=%d", ErrTooFewVectors, len(vectors), p.cfg.Ks)
	}

	data := make([][]float64, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d, want %d", ErrDimension, i, len(v), dim)
		}
		data[i] = vector.Float64s(v)
	}

	ds := dim / p.cfg.M
	primary := p.trainCodebook(data, ds)

	residuals := make([][]float64, len(data))
	for i, x := range data {
		recon := reconstruct(primary, encode(primary, x, ds), ds)
		residuals[i] = make([]float64, dim)
		floats.SubTo(residuals[i], x, recon)
	}

	p.ds = ds
	p.primary = primary
	p.residual = p.trainCodebook(residuals, ds)
	return nil
}

func (p *Product) trainCodebook(data [][]float64, ds int) [][][]float64 {
	book := make([][][]float64, p.cfg.M)
	for m := range book {
		sub := make([][]float64, len(data))
		for i, x := range data {
			sub[i] = x[m*ds : (m+1)*ds]
		}
		book[m], _ = KMeans(sub, p.cfg.Ks, p.cfg.MaxIterations, p.rng)
	}
	return book
}

// Compress encodes v against the primary codebook, then encodes the residual
// against the residual codebook.
func (p *Product) Compress(v []float32) (Codes, error) {
	if !p.Trained() {
		return Codes{}, ErrUntrained
	}
	if len(v) != p.ds*p.cfg.M {
		return Codes{}, fmt.Errorf("%w: %d, want %d", ErrDimension, len(v), p.ds*p.cfg.M)
	}

	x := vector.Float64s(v)
	primary := encode(p.primary, x, p.ds)

	residual := make([]float64, len(x))
	floats.SubTo(residual, x, reconstruct(p.primary, primary, p.ds))

	return Codes{
		Primary:  primary,
		Residual: encode(p.residual, residual, p.ds),
	}, nil
}

// Decompress sums the primary and residual reconstructions.
func (p *Product) Decompress(c Codes) ([]float32, error) {
	if !p.Trained() {
		return nil, ErrUntrained
	}
	if len(c.Primary) != p.cfg.M || len(c.Residual) != p.cfg.M {
		return nil, fmt.Errorf("%w: want %d codes per stage", ErrCodeRange, p.cfg.M)
	}
	for _, code := range append(append([]uint16(nil), c.Primary...), c.Residual...) {
		if int(code) >= p.cfg.Ks {
			return nil, fmt.Errorf("%w: %d >= %d", ErrCodeRange, code, p.cfg.Ks)
		}
	}

	out := reconstruct(p.primary, c.Primary, p.ds)
	floats.Add(out, reconstruct(p.residual, c.Residual, p.ds))
	return vector.Float32s(out), nil
}

// CompressAll compresses every vector.
func (p *Product) CompressAll(vectors [][]float32) ([]Codes, error) {
	out := make([]Codes, len(vectors))
	for i, v := range vectors {
		c, err := p.Compress(v)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Codebook returns the primary centroids, one flattened Ks*Ds slice per
// subspace.
func (p *Product) Codebook() [][]float32 {
	return flatten(p.primary)
}

// ResidualCodebook returns the residual centroids in the Codebook layout.
func (p *Product) ResidualCodebook() [][]float32 {
	return flatten(p.residual)
}

func encode(book [][][]float64, x []float64, ds int) []uint16 {
	codes := make([]uint16, len(book))
	for m, centroids := range book {
		codes[m] = uint16(nearest(centroids, x[m*ds:(m+1)*ds]))
	}
	return codes
}

func reconstruct(book [][][]float64, codes []uint16, ds int) []float64 {
	out := make([]float64, 0, len(book)*ds)
	for m, c := range codes {
		out = append(out, book[m][c]...)
	}
	return out
}

func flatten(book [][][]float64) [][]float32 {
	out := make([][]float32, len(book))
	for m, centroids := range book {
		flat := make([]float32, 0, len(centroids)*len(centroids[0]))
		for _, c := range centroids {
			flat = append(flat, vector.Float32s(c)...)
		}
		out[m] = flat
	}
	return out
}
