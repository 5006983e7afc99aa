package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	soundscape "github.com/cbegin/soundscape-go"
	"github.com/cbegin/soundscape-go/internal/graph"
	"github.com/cbegin/soundscape-go/internal/logger"
	"github.com/cbegin/soundscape-go/internal/macro"
	"github.com/cbegin/soundscape-go/internal/patch"
)

// Host is the engine surface the handlers drive.
type Host interface {
	Patch() *patch.Patch
	LoadPatch(data []byte) error
	ValidatePatch(data []byte) []patch.ValidationError
	ApplyPatchDiff(d patch.Diff) error
	SetMacro(name string, value float64) error
	Macro(name string) (float64, error)
	MacroTargets(name string) ([]string, error)
	Start() error
	Stop() error
	Running() bool
	LoadID() string
	Topology() graph.Topology
	Stats() soundscape.Stats
	Summary() string
}

type EngineHandler struct {
	host     Host
	maxBytes int64
}

// NewEngineHandler serves host. Request bodies larger than maxBytes are
// rejected before decoding; 0 means no limit.
func NewEngineHandler(host Host, maxBytes int) *EngineHandler {
	return &EngineHandler{host: host, maxBytes: int64(maxBytes)}
}

// GetPatch returns the active document.
// GET /api/v1/patch
func (h *EngineHandler) GetPatch(c *gin.Context) {
	p := h.host.Patch()
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": soundscape.ErrNotLoaded.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// LoadPatch replaces the active patch with a JSON or YAML body.
// PUT /api/v1/patch
func (h *EngineHandler) LoadPatch(c *gin.Context) {
	data, ok := h.body(c)
	if !ok {
		return
	}
	if err := h.host.LoadPatch(data); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"load_id": h.host.LoadID(), "running": h.host.Running()})
}

// ValidatePatch reports every problem with a body without loading it.
// POST /api/v1/patch/validate
func (h *EngineHandler) ValidatePatch(c *gin.Context) {
	data, ok := h.body(c)
	if !ok {
		return
	}
	errs := h.host.ValidatePatch(data)
	if errs == nil {
		errs = []patch.ValidationError{}
	}
	c.JSON(http.StatusOK, gin.H{"valid": len(errs) == 0, "errors": errs})
}

// ApplyDiff edits the active patch.
// POST /api/v1/patch/diff
func (h *EngineHandler) ApplyDiff(c *gin.Context) {
	var d patch.Diff
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.host.ApplyPatchDiff(d); err != nil {
		var verrs patch.ValidationErrors
		if errors.As(err, &verrs) || errors.Is(err, soundscape.ErrNotLoaded) {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"load_id": h.host.LoadID()})
}

type macroRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

// SetMacro sets one macro.
// PUT /api/v1/macros/:name
func (h *EngineHandler) SetMacro(c *gin.Context) {
	var req macroRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := c.Param("name")
	if err := h.host.SetMacro(name, *req.Value); err != nil {
		h.fail(c, err)
		return
	}
	v, _ := h.host.Macro(name)
	targets, _ := h.host.MacroTargets(name)
	c.JSON(http.StatusOK, gin.H{"name": name, "value": v, "targets": targets})
}

// GetMacros returns every macro value.
// GET /api/v1/macros
func (h *EngineHandler) GetMacros(c *gin.Context) {
	out := gin.H{}
	for _, n := range macro.Names() {
		v, err := h.host.Macro(n.String())
		if err != nil {
			h.fail(c, err)
			return
		}
		out[n.String()] = v
	}
	c.JSON(http.StatusOK, out)
}

// Start begins playback.
// POST /api/v1/start
func (h *EngineHandler) Start(c *gin.Context) {
	if err := h.host.Start(); err != nil {
		h.fail(c, err)
		return
	}
	logger.Info("playback started", logger.WithContext(c))
	c.JSON(http.StatusOK, gin.H{"running": true, "load_id": h.host.LoadID()})
}

// Stop halts playback.
// POST /api/v1/stop
func (h *EngineHandler) Stop(c *gin.Context) {
	if err := h.host.Stop(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": false})
}

// Summary returns the human-readable patch description.
// GET /api/v1/summary
func (h *EngineHandler) Summary(c *gin.Context) {
	c.String(http.StatusOK, h.host.Summary())
}

type topologyNode struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Topology returns the compiled node and connection sets.
// GET /api/v1/topology
func (h *EngineHandler) Topology(c *gin.Context) {
	topo := h.host.Topology()
	nodes := make([]topologyNode, len(topo.Nodes))
	for i, n := range topo.Nodes {
		nodes[i] = topologyNode{ID: n.ID, Type: n.Kind.String()}
	}
	c.JSON(http.StatusOK, gin.H{
		"load_id":     h.host.LoadID(),
		"nodes":       nodes,
		"connections": topo.Connections,
		"order":       topo.Order,
	})
}

// Stats returns scheduling counters.
// GET /api/v1/stats
func (h *EngineHandler) Stats(c *gin.Context) {
	s := h.host.Stats()
	c.JSON(http.StatusOK, gin.H{
		"running":    h.host.Running(),
		"dispatched": s.Dispatched,
		"skipped":    s.Skipped,
		"unresolved": s.Unresolved,
		"dropped":    s.Dropped,
		"late":       s.Late,
		"faults":     s.Faults,
		"recoveries": s.Recoveries,
		"events":     s.Events,
	})
}

func (h *EngineHandler) body(c *gin.Context) ([]byte, bool) {
	r := io.Reader(c.Request.Body)
	if h.maxBytes > 0 {
		r = io.LimitReader(r, h.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if h.maxBytes > 0 && int64(len(data)) > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "patch too large"})
		return nil, false
	}
	return data, true
}

// fail maps engine errors onto status codes.
func (h *EngineHandler) fail(c *gin.Context, err error) {
	var verrs patch.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid patch", "errors": verrs})
	case errors.Is(err, soundscape.ErrUnknownMacro):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, soundscape.ErrNotLoaded), errors.Is(err, soundscape.ErrRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		fields := logger.WithContext(c)
		logger.Error("engine request failed", err, fields)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "request_id": c.GetString("request_id")})
	}
}
