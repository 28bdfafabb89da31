package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/sway/pkg/backend"
	"github.com/papercomputeco/sway/pkg/personalize"
	"github.com/papercomputeco/sway/pkg/signal"
)

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	Algorithm     string `json:"algorithm"`
	VectorStoreID string `json:"vdb_id"`

	// ID makes the session persistent.
	ID       string `json:"id,omitempty"`
	CustomID string `json:"custom_id,omitempty"`
}

// CreateSessionResponse carries the id of the created session.
type CreateSessionResponse struct {
	ID string `json:"id"`
}

// SignalRequest is the body of POST /sessions/:id/signals. A zero weight
// takes the weight of the blueprint's signal table.
type SignalRequest struct {
	ContentID string  `json:"content_id"`
	Label     string  `json:"label"`
	Weight    float64 `json:"weight,omitempty"`
}

// BatchRequest is the body of POST /sessions/:id/batch.
type BatchRequest struct {
	Size int                      `json:"size,omitempty"`
	Bias *backend.WeightedVectors `json:"bias,omitempty"`
}

// handleCreateSession creates a session.
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Algorithm == "" || req.VectorStoreID == "" {
		return badRequest(c, "algorithm and vdb_id are required")
	}

	id, err := s.personalizer.Session(c.Context(), req.Algorithm, req.VectorStoreID, personalize.SessionOptions{
		ID:       req.ID,
		CustomID: req.CustomID,
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(CreateSessionResponse{ID: id})
}

// handleGetSession returns a session's state.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.personalizer.GetSession(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(sess)
}

// handleSignal records a user action.
func (s *Server) handleSignal(c *fiber.Ctx) error {
	var req SignalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ContentID == "" || req.Label == "" {
		return badRequest(c, "content_id and label are required")
	}

	res, err := s.personalizer.AddSignal(c.Context(), c.Params("id"),
		signal.Signal{Label: req.Label, Weight: req.Weight}, req.ContentID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

// handleBatch serves the next batch of a session.
func (s *Server) handleBatch(c *fiber.Ctx) error {
	var req BatchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	if req.Size < 0 {
		return badRequest(c, "size must not be negative")
	}
	if req.Bias != nil && len(req.Bias.Vectors) != len(req.Bias.Weights) {
		return badRequest(c, "bias vectors and weights must have the same length")
	}

	batch, err := s.personalizer.Batch(c.Context(), c.Params("id"), personalize.BatchOptions{
		Size: req.Size,
		Bias: req.Bias,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(batch)
}

// handleEmbeddings returns the user embeddings of a session.
func (s *Server) handleEmbeddings(c *fiber.Ctx) error {
	wv, err := s.personalizer.UserEmbeddings(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(wv)
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}
