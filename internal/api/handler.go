package api

import (
	"net/http"
	"path/filepath"
	"strconv"

	"pmuplace/app"
	"pmuplace/domain/core"
	"pmuplace/domain/placement"
	"pmuplace/internal"
	"pmuplace/internal/errors"
	"pmuplace/ports"

	"github.com/gin-gonic/gin"
)

// SearchRequest is the body of POST /api/v1/searches. Zero fields take the
// handler defaults.
type SearchRequest struct {
	Dataset       string   `json:"dataset" binding:"required"`
	Target        string   `json:"target"`
	MaxPlacements int      `json:"max_placements" binding:"gte=0"`
	Excluded      []string `json:"excluded"`
	Degree        int      `json:"degree" binding:"gte=0"`
	Parsimonious  *bool    `json:"parsimonious"`
	Workers       int      `json:"workers" binding:"gte=0"`
	Mode          string   `json:"mode" binding:"omitempty,oneof=batch incremental failover"`
	Retries       int      `json:"retries" binding:"gte=0"`
}

// SearchHandler runs searches on datasets of one input directory and serves
// the stored runs
type SearchHandler struct {
	inputDir string
	defaults placement.Config
	reader   ports.DatasetReader
	oracles  ports.OracleFactory
	runs     ports.RunRepository
	newSink  func() ports.TraceSink
	log      *internal.Logger
}

// NewSearchHandler creates a new search handler. newSink must return a fresh
// sink per call; each request writes its run through its own sink.
func NewSearchHandler(inputDir string, defaults placement.Config, reader ports.DatasetReader, oracles ports.OracleFactory, runs ports.RunRepository, newSink func() ports.TraceSink, logger *internal.Logger) *SearchHandler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &SearchHandler{
		inputDir: inputDir,
		defaults: defaults,
		reader:   reader,
		oracles:  oracles,
		runs:     runs,
		newSink:  newSink,
		log:      logger.With("api"),
	}
}

// CreateSearch runs a search synchronously and returns its result
func (h *SearchHandler) CreateSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runReq := app.RunRequest{
		Path:    h.datasetPath(req.Dataset),
		Config:  h.config(req),
		Mode:    req.Mode,
		Retries: req.Retries,
	}
	if runReq.Mode == app.ModeFailover && runReq.Retries == 0 {
		runReq.Retries = 3
	}

	svc := app.NewPlacementService(h.reader, h.oracles, []ports.TraceSink{h.newSink()}, h.log)
	result, err := svc.RunDataset(c.Request.Context(), runReq)
	if err != nil {
		h.log.Warn("search on %s failed: %v", req.Dataset, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": errors.GetCode(err)})
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetSearch returns a stored run with its trace
func (h *SearchHandler) GetSearch(c *gin.Context) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := h.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListSearches returns the most recent runs
func (h *SearchHandler) ListSearches(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	runs, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// datasetPath keeps the requested file inside the input directory
func (h *SearchHandler) datasetPath(name string) string {
	return filepath.Join(h.inputDir, filepath.Clean("/"+name))
}

func (h *SearchHandler) config(req SearchRequest) placement.Config {
	cfg := h.defaults
	if req.Target != "" {
		cfg.TargetVariable = placement.Variable(req.Target)
	}
	if req.MaxPlacements > 0 {
		cfg.MaxPlacements = req.MaxPlacements
	}
	if req.Excluded != nil {
		cfg.ExcludedVariables = placement.Variables(req.Excluded...)
	}
	if req.Degree > 0 {
		cfg.PolynomialDegree = req.Degree
	}
	if req.Parsimonious != nil {
		cfg.Parsimonious = *req.Parsimonious
	}
	if req.Workers > 0 {
		cfg.Workers = req.Workers
	}
	return cfg
}

func statusFor(err error) int {
	if core.IsNotFoundError(err) {
		return http.StatusNotFound
	}
	switch errors.GetCode(err) {
	case errors.CodeConfigInvalid, errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeDatasetInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
