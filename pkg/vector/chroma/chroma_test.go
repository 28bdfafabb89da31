package chroma_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sway/pkg/logger"
	"github.com/papercomputeco/sway/pkg/vector"
	"github.com/papercomputeco/sway/pkg/vector/chroma"
)

const collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

// fakeChroma answers the collection endpoints the driver uses and records
// the last request body per operation.
type fakeChroma struct {
	mu       sync.Mutex
	created  map[string]any
	bodies   map[string]map[string]any
	query    map[string]any
	get      map[string]any
	existing bool
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(r.URL.Path, collectionsPath)

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.Method == http.MethodGet && path == "/sway":
		if !f.existing {
			http.Error(w, `{"error":"NotFoundError"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "col-1", "name": "sway"})
	case r.Method == http.MethodPost && path == "":
		f.created = body
		json.NewEncoder(w).Encode(map[string]any{"id": "col-1", "name": body["name"]})
	case strings.HasPrefix(path, "/col-1/"):
		op := strings.TrimPrefix(path, "/col-1/")
		f.bodies[op] = body
		switch op {
		case "query":
			json.NewEncoder(w).Encode(f.query)
		case "get":
			json.NewEncoder(w).Encode(f.get)
		default:
			w.Write([]byte("{}"))
		}
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeChroma) body(op string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[op]
}

var _ = Describe("Driver", func() {
	var (
		log *slog.Logger
		ctx context.Context
	)

	BeforeEach(func() {
		log = logger.Nop()
		ctx = context.Background()
	})

	Describe("NewDriver", func() {
		It("should return an error when URL is empty", func() {
			_, err := chroma.NewDriver(ctx, chroma.Config{Collection: "sway", Dimensions: 2}, log)
			Expect(err).To(MatchError(ContainSubstring("chroma URL is required")))
		})

		It("should return an error when dimensions are not set", func() {
			_, err := chroma.NewDriver(ctx, chroma.Config{URL: "http://localhost:8000", Collection: "sway"}, log)
			Expect(err).To(MatchError(ContainSubstring("dimensions cannot be 0")))
		})

		It("creates a missing collection with the metric's distance", func() {
			fake := &fakeChroma{bodies: map[string]map[string]any{}}
			server := httptest.NewServer(fake)
			DeferCleanup(server.Close)

			d, err := chroma.NewDriver(ctx, chroma.Config{
				URL:        server.URL,
				Collection: "sway",
				Dimensions: 2,
				Metric:     vector.MetricEuclidean,
			}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Metric()).To(Equal(vector.MetricEuclidean))
			Expect(fake.created).To(HaveKeyWithValue("name", "sway"))
			Expect(fake.created["metadata"]).To(HaveKeyWithValue("hnsw:space", "l2"))
		})

		It("should succeed after retrying when Chroma becomes available", func() {
			var attempts atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if attempts.Add(1) <= 4 {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"id":   "test-collection-id",
					"name": "sway",
				})
			}))
			defer server.Close()

			driver, err := chroma.NewDriver(ctx, chroma.Config{
				URL:           server.URL,
				Collection:    "sway",
				Dimensions:    2,
				MaxRetries:    5,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver).NotTo(BeNil())
			Expect(attempts.Load()).To(BeNumerically(">=", int32(5)))
		})

		It("should return an error after exhausting all retries", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			}))
			defer server.Close()

			_, err := chroma.NewDriver(ctx, chroma.Config{
				URL:           server.URL,
				Collection:    "sway",
				Dimensions:    2,
				MaxRetries:    3,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, log)
			Expect(err).To(MatchError(vector.ErrConnection))
			Expect(err.Error()).To(ContainSubstring("after 3 attempts"))
		})
	})

	Describe("with a collection", func() {
		var (
			fake   *fakeChroma
			driver *chroma.Driver
		)

		BeforeEach(func() {
			fake = &fakeChroma{existing: true, bodies: map[string]map[string]any{}}
			server := httptest.NewServer(fake)
			DeferCleanup(server.Close)

			var err error
			driver, err = chroma.NewDriver(ctx, chroma.Config{
				URL:        server.URL,
				Collection: "sway",
				Dimensions: 2,
			}, log)
			Expect(err).NotTo(HaveOccurred())
		})

		It("upserts documents", func() {
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "a", Embedding: []float32{1, 0}, Metadata: map[string]any{"genre": "jazz"}},
			})).To(Succeed())

			Expect(fake.body("upsert")).To(HaveKeyWithValue("ids", ConsistOf("a")))
		})

		It("rejects embeddings of the wrong size", func() {
			err := driver.Add(ctx, []vector.Document{{ID: "a", Embedding: []float32{1, 0, 0}}})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("converts cosine distances and drops excluded ids", func() {
			fake.query = map[string]any{
				"ids":       [][]string{{"a", "b", "c"}},
				"distances": [][]float64{{0.1, 0.2, 0.4}},
				"metadatas": [][]map[string]any{{{"genre": "jazz"}, {"genre": "jazz"}, {"genre": "jazz"}}},
			}

			results, err := driver.Search(ctx, vector.Query{
				Embedding: []float32{1, 0},
				TopK:      2,
				Filter: driver.HistoryFilter([]string{"a"}, vector.Filter{
					Match: map[string]any{"genre": "jazz"},
				}),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("b"))
			Expect(results[0].Score).To(BeNumerically("~", 0.8, 1e-9))
			Expect(results[1].ID).To(Equal("c"))

			sent := fake.body("query")
			Expect(sent["n_results"]).To(BeNumerically("==", 3))
			Expect(sent["where"]).To(HaveKeyWithValue("genre", "jazz"))
			Expect(sent["include"]).NotTo(ContainElement("embeddings"))
		})

		It("asks for embeddings when values are requested", func() {
			fake.query = map[string]any{
				"ids":        [][]string{{"a"}},
				"distances":  [][]float64{{0}},
				"embeddings": [][][]float32{{{1, 0}}},
			}

			results, err := driver.Search(ctx, vector.Query{Embedding: []float32{1, 0}, TopK: 1, IncludeValues: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Embedding).To(Equal([]float32{1, 0}))
			Expect(fake.body("query")["include"]).To(ContainElement("embeddings"))
		})

		It("combines several metadata matches", func() {
			fake.query = map[string]any{"ids": [][]string{{}}}

			_, err := driver.Search(ctx, vector.Query{
				Embedding: []float32{1, 0},
				TopK:      1,
				Filter:    vector.Filter{Match: map[string]any{"genre": "jazz", "lang": "en"}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.body("query")["where"]).To(HaveKeyWithValue("$and", HaveLen(2)))
		})

		It("fetches a document", func() {
			fake.get = map[string]any{
				"ids":        []string{"a"},
				"embeddings": [][]float32{{1, 0}},
				"metadatas":  []map[string]any{{"genre": "jazz"}},
			}

			doc, err := driver.Fetch(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Embedding).To(Equal([]float32{1, 0}))
			Expect(doc.Metadata).To(HaveKeyWithValue("genre", "jazz"))
		})

		It("returns ErrNotFound for missing documents", func() {
			fake.get = map[string]any{"ids": []string{}}

			_, err := driver.Fetch(ctx, "missing")
			Expect(err).To(MatchError(vector.ErrNotFound))
		})
	})

	It("should implement vector.Driver interface", func() {
		var _ vector.Driver = (*chroma.Driver)(nil)
	})
})
