package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/sway/pkg/blueprint"
)

// BlueprintView is a resolved blueprint as returned by the API.
type BlueprintView struct {
	Name     string              `json:"name,omitempty"`
	Vertices []*blueprint.Vertex `json:"vertices"`
	Edges    []EdgeView          `json:"edges"`
}

// EdgeView is a blueprint edge with its endpoints by name.
type EdgeView struct {
	Name   string `json:"name"`
	Signal string `json:"signal"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// ValidateResponse is the result of POST /blueprints/validate.
type ValidateResponse struct {
	Valid     bool           `json:"valid"`
	Error     string         `json:"error,omitempty"`
	Blueprint *BlueprintView `json:"blueprint,omitempty"`
}

// StepRequest is the body of POST /blueprints/step.
type StepRequest struct {
	// Algorithm is SIMPLE, CUSTOM or a preset name.
	Algorithm string `json:"algorithm"`
	CustomID  string `json:"custom_id,omitempty"`
	State     string `json:"state"`
	Signal    string `json:"signal"`
}

// StepResponse is the result of a single transition.
type StepResponse struct {
	Source      *blueprint.Vertex   `json:"source"`
	Destination *blueprint.Vertex   `json:"destination"`
	BatchType   blueprint.BatchType `json:"batch_type"`
	Params      blueprint.Params    `json:"params"`
}

func viewOf(name string, bp *blueprint.Blueprint) *BlueprintView {
	edges := bp.Edges()
	view := &BlueprintView{
		Name:     name,
		Vertices: bp.Vertices(),
		Edges:    make([]EdgeView, len(edges)),
	}
	for i, e := range edges {
		view.Edges[i] = EdgeView{
			Name:   e.Name,
			Signal: e.Signal.Label,
			Start:  e.Start.Name,
			End:    e.End.Name,
		}
	}
	return view
}

// handleListBlueprints returns the built-in presets.
func (s *Server) handleListBlueprints(c *fiber.Ctx) error {
	presets := blueprint.Presets()
	return c.JSON(map[string]any{
		"count":      len(presets),
		"blueprints": presets,
	})
}

// handleGetBlueprint returns a preset by id.
func (s *Server) handleGetBlueprint(c *fiber.Ctx) error {
	name := strings.ToUpper(c.Params("name"))

	bp, err := blueprint.Preset(name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(viewOf(name, bp))
}

// handleValidateBlueprint parses a JSON or YAML document and reports whether
// it is a valid blueprint.
func (s *Server) handleValidateBlueprint(c *fiber.Ctx) error {
	var (
		doc blueprint.Document
		err error
	)
	if strings.Contains(c.Get(fiber.HeaderContentType), "yaml") {
		doc, err = blueprint.DecodeYAML(c.Body())
	} else {
		doc, err = blueprint.DecodeJSON(c.Body())
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ValidateResponse{Error: err.Error()})
	}

	bp, err := doc.Build()
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ValidateResponse{Error: err.Error()})
	}

	return c.JSON(ValidateResponse{Valid: true, Blueprint: viewOf("", bp)})
}

// handleStep resolves a single transition without touching any session.
func (s *Server) handleStep(c *fiber.Ctx) error {
	var req StepRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Algorithm == "" || req.Signal == "" {
		return badRequest(c, "algorithm and signal are required")
	}
	if req.State == "" {
		req.State = blueprint.InitialStateSentinel
	}

	bp, err := s.personalizer.Blueprint(c.Context(), blueprint.SourceFor(req.Algorithm, req.CustomID))
	if err != nil {
		return s.fail(c, err)
	}

	sig, ok := bp.Signals().Lookup(req.Signal)
	if !ok {
		return badRequest(c, "unknown signal "+req.Signal)
	}

	res, err := bp.Step(req.State, sig)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(StepResponse{
		Source:      res.Source,
		Destination: res.Destination,
		BatchType:   res.BatchType,
		Params:      res.Params,
	})
}
