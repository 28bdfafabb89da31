// Package remote provides a backend.Backend over the hosted embeddings HTTP API.
package remote

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // the API expects an md5 digest of the key
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/sway/pkg/backend"
	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/session"
)

const (
	// DefaultRegionURL resolves the team and region of an API key.
	DefaultRegionURL = "https://idp.firstbatch.xyz/v1/teams/team/get-team-information"

	defaultMaxRetries   = 3
	defaultRetryBackoff = 200 * time.Millisecond
	defaultTimeout      = 60 * time.Second
)

// Regions maps a region name to its API base URL.
var Regions = map[string]string{
	"us-east-1":      "https://aws-us-east-1.hollowdb.xyz/",
	"us-west-1":      "https://aws-us-west-1.hollowdb.xyz/",
	"eu-central-1":   "https://aws-eu-central-1.hollowdb.xyz/",
	"ap-southeast-1": "https://aws-ap-southeast-1.hollowdb.xyz/",
}

// Config holds configuration for the remote backend.
type Config struct {
	// APIKey is sent as x-api-key on every request.
	APIKey string

	// BaseURL is the API root. When empty the region is discovered from
	// RegionURL.
	BaseURL string

	// TeamID prefixes persistent session ids. Discovered with the region
	// when empty.
	TeamID string
	Region string

	// RegionURL defaults to DefaultRegionURL.
	RegionURL string

	// MaxRetries bounds retries of transport errors and 5xx responses.
	MaxRetries int

	// RetryBackoff is the first retry delay, doubled on every attempt.
	RetryBackoff time.Duration

	HTTPClient *http.Client
}

// APIError is a request the API answered with success=false or a non-200
// status.
type APIError struct {
	Path    string
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("embeddings API %s failed: status %d code %d", e.Path, e.Status, e.Code)
	}
	return fmt.Sprintf("embeddings API %s failed: status %d code %d: %s", e.Path, e.Status, e.Code, e.Message)
}

// Client implements backend.Backend.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

var _ backend.Backend = (*Client)(nil)

type envelope[T any] struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// New creates a remote backend, discovering the region when no BaseURL is
// configured.
func New(ctx context.Context, c Config, logger *slog.Logger) (*Client, error) {
	if c.APIKey == "" {
		return nil, errors.New("remote backend API key is required")
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RegionURL == "" {
		c.RegionURL = DefaultRegionURL
	}

	cl := &Client{
		cfg:        c,
		httpClient: c.HTTPClient,
		logger:     logger,
	}
	if cl.httpClient == nil {
		cl.httpClient = &http.Client{Timeout: defaultTimeout}
	}

	if cl.cfg.BaseURL == "" {
		if err := cl.discover(ctx); err != nil {
			return nil, err
		}
	}
	if !strings.HasSuffix(cl.cfg.BaseURL, "/") {
		cl.cfg.BaseURL += "/"
	}

	logger.Info("using remote personalization backend",
		"url", cl.cfg.BaseURL,
		"region", cl.cfg.Region,
	)
	return cl, nil
}

// discover resolves the team id and region base URL of the API key.
func (c *Client) discover(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.RegionURL, nil)
	if err != nil {
		return fmt.Errorf("creating region request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending region request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("region request failed: status %d: %s", resp.StatusCode, string(body))
	}

	var env envelope[struct {
		TeamID string `json:"teamID"`
		Region string `json:"region"`
	}]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding region response: %w", err)
	}

	base, ok := Regions[env.Data.Region]
	if !ok {
		return fmt.Errorf("no such region: %q", env.Data.Region)
	}

	c.cfg.BaseURL = base
	c.cfg.Region = env.Data.Region
	if c.cfg.TeamID == "" {
		c.cfg.TeamID = env.Data.TeamID
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// post sends body to path and decodes the envelope data into T.
func post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var zero T

	payload, err := json.Marshal(body)
	if err != nil {
		return zero, fmt.Errorf("marshaling %s request: %w", path, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBackoff << (attempt - 1)
			c.logger.Debug("retrying embeddings API request",
				"path", path,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		data, retry, err := do[T](ctx, c, path, payload)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry {
			return zero, err
		}
	}

	return zero, fmt.Errorf("embeddings API %s: giving up after %d attempts: %w", path, c.cfg.MaxRetries+1, lastErr)
}

// do performs one attempt. retry reports whether the failure is transient.
func do[T any](ctx context.Context, c *Client, path string, payload []byte) (data T, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return data, false, fmt.Errorf("creating %s request: %w", path, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return data, ctx.Err() == nil, fmt.Errorf("sending %s request: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return data, true, fmt.Errorf("reading %s response: %w", path, err)
	}

	var env envelope[T]
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Path: path, Status: resp.StatusCode, Code: env.Code, Message: env.Message}
		if decodeErr != nil {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return data, resp.StatusCode >= http.StatusInternalServerError, apiErr
	}
	if decodeErr != nil {
		return data, false, fmt.Errorf("decoding %s response: %w", path, decodeErr)
	}
	if !env.Success {
		return data, false, &APIError{Path: path, Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}

	return env.Data, false, nil
}

// sessionID prefixes a caller chosen session id with the team id.
func (c *Client) sessionID(id string) string {
	if id == "" || c.cfg.TeamID == "" {
		return id
	}
	return c.cfg.TeamID + "-" + id
}

func (c *Client) keyDigest() string {
	sum := md5.Sum([]byte(c.cfg.APIKey)) //nolint:gosec // the API expects an md5 digest of the key
	return hex.EncodeToString(sum[:])
}

// VectorStoreExists implements backend.Backend.
func (c *Client) VectorStoreExists(ctx context.Context, vdbID string) (bool, error) {
	return post[bool](ctx, c, "embeddings/vdb_exists", map[string]any{
		"vdbid": vdbID,
	})
}

// InitScalar implements backend.Backend.
func (c *Client) InitScalar(ctx context.Context, req backend.ScalarInit) error {
	_, err := post[string](ctx, c, "embeddings/init_vdb", map[string]any{
		"key":            c.keyDigest(),
		"vdbid":          req.VectorStoreID,
		"mode":           "scalar",
		"region":         c.cfg.Region,
		"quantized_vecs": req.QuantizedVectors,
		"quantiles":      req.Quantiles,
	})
	return err
}

// InitProduct implements backend.Backend.
func (c *Client) InitProduct(ctx context.Context, req backend.ProductInit) error {
	_, err := post[string](ctx, c, "embeddings/init_vdb", map[string]any{
		"key":                 c.keyDigest(),
		"vdbid":               req.VectorStoreID,
		"mode":                "product",
		"region":              c.cfg.Region,
		"quantized_vecs":      req.QuantizedVectors,
		"quantized_residuals": req.QuantizedResiduals,
		"codebook":            req.Codebook,
		"codebook_residual":   req.CodebookResidual,
		"M":                   req.M,
		"Ks":                  req.Ks,
		"Ds":                  req.Ds,
	})
	return err
}

// CreateSession implements backend.Backend.
func (c *Client) CreateSession(ctx context.Context, req backend.CreateSession) (string, error) {
	body := map[string]any{
		"vdbid":          req.VectorStoreID,
		"algorithm":      string(req.Source.Kind),
		"has_embeddings": false,
	}
	if req.ID != "" {
		body["id"] = c.sessionID(req.ID)
	}
	switch req.Source.Kind {
	case blueprint.KindCustom:
		body["custom_id"] = req.Source.CustomID
	case blueprint.KindFactory:
		body["factory_id"] = req.Source.FactoryID
	}

	return post[string](ctx, c, "embeddings/create_session", body)
}

type sessionResponse struct {
	State         string `json:"state"`
	Algorithm     string `json:"algorithm"`
	VectorStoreID string `json:"vdbid"`
	HasEmbeddings bool   `json:"has_embeddings"`
	FactoryID     string `json:"factory_id"`
	CustomID      string `json:"custom_id"`
}

// GetSession implements backend.Backend.
func (c *Client) GetSession(ctx context.Context, id string) (*session.Session, error) {
	resp, err := post[sessionResponse](ctx, c, "embeddings/get_session", map[string]any{"id": id})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, session.NotFoundError{ID: id}
		}
		return nil, err
	}

	return &session.Session{
		ID:            id,
		VectorStoreID: resp.VectorStoreID,
		Algorithm:     blueprint.Kind(resp.Algorithm),
		FactoryID:     resp.FactoryID,
		CustomID:      resp.CustomID,
		State:         resp.State,
		HasEmbeddings: resp.HasEmbeddings,
	}, nil
}

// UpdateState implements backend.Backend. The API expects an uppercased
// batch type.
func (c *Client) UpdateState(ctx context.Context, id, state string, batchType blueprint.BatchType) error {
	_, err := post[string](ctx, c, "embeddings/update_state", map[string]any{
		"id":         id,
		"state":      state,
		"batch_type": strings.ToUpper(string(batchType)),
	})
	return err
}

// Signal implements backend.Backend.
func (c *Client) Signal(ctx context.Context, req backend.SignalRequest) error {
	_, err := post[string](ctx, c, "embeddings/signal", map[string]any{
		"id":           req.SessionID,
		"state":        req.State,
		"signal":       req.Signal.Weight,
		"signal_label": req.Signal.Label,
		"vector":       req.Vector,
	})
	return err
}

// BiasedBatch implements backend.Backend.
func (c *Client) BiasedBatch(ctx context.Context, req backend.BiasedBatchRequest) (backend.WeightedVectors, error) {
	body := map[string]any{
		"id":     req.SessionID,
		"vdbid":  req.VectorStoreID,
		"state":  req.State,
		"params": req.Params,
	}
	if req.BiasVectors != nil {
		body["bias_vectors"] = req.BiasVectors
		body["bias_weights"] = req.BiasWeights
	}
	return post[backend.WeightedVectors](ctx, c, "embeddings/biased_batch", body)
}

// SampledBatch implements backend.Backend.
func (c *Client) SampledBatch(ctx context.Context, req backend.SampledBatchRequest) (backend.WeightedVectors, error) {
	return post[backend.WeightedVectors](ctx, c, "embeddings/sampled_batch", map[string]any{
		"id":     req.SessionID,
		"n":      req.NTopics,
		"vdbid":  req.VectorStoreID,
		"state":  req.State,
		"params": req.Params,
	})
}

// History implements backend.Backend.
func (c *Client) History(ctx context.Context, id string) ([]string, error) {
	resp, err := post[struct {
		IDs []string `json:"ids"`
	}](ctx, c, "embeddings/get_history", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// AddHistory implements backend.Backend.
func (c *Client) AddHistory(ctx context.Context, id string, contentIDs []string) error {
	_, err := post[string](ctx, c, "embeddings/update_history", map[string]any{
		"id":  id,
		"ids": contentIDs,
	})
	return err
}

// UserEmbeddings implements backend.Backend.
func (c *Client) UserEmbeddings(ctx context.Context, id string, n int) (backend.WeightedVectors, error) {
	if n <= 0 {
		n = backend.DefaultEmbeddingLastN
	}
	return post[backend.WeightedVectors](ctx, c, "embeddings/get_embeddings", map[string]any{
		"id":     id,
		"last_n": n,
	})
}

// Blueprint implements backend.Backend. The API returns the document as a
// JSON string.
func (c *Client) Blueprint(ctx context.Context, customID string) (blueprint.Document, error) {
	raw, err := post[string](ctx, c, "embeddings/get_blueprint", map[string]any{"id": customID})
	if err != nil {
		return blueprint.Document{}, err
	}
	return blueprint.DecodeJSON([]byte(raw))
}
