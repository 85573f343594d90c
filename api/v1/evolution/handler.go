package evolution

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"go_agentos/api/v1/middleware"
	"go_agentos/internal/apperr"
	"go_agentos/internal/evolution"
	"go_agentos/internal/httpx"

	"github.com/gin-gonic/gin"
)

// SweepRequest represents the sweep trigger body. CustomThreshold accepts a
// JSON number or a numeric string.
type SweepRequest struct {
	TenantID        string          `json:"tenantId"`
	CustomThreshold json.RawMessage `json:"customThreshold"`
}

// Handler handles evolution API
type Handler struct {
	sweeper *evolution.Sweeper
}

// NewHandler creates a new evolution handler
func NewHandler(sweeper *evolution.Sweeper) *Handler {
	return &Handler{sweeper: sweeper}
}

// Sweep handles POST /api/v1/evolution/sweep. Only admins may sweep another
// tenant or all tenants; everyone else sweeps their own.
func (h *Handler) Sweep(c *gin.Context) {
	req, ok := bindSweep(c)
	if !ok {
		return
	}
	if !middleware.IsAdmin(c) {
		req.TenantID = middleware.TenantID(c)
	}
	h.run(c, req)
}

// SweepInternal handles POST /internal/v1/evolution/sweep for the scheduler
func (h *Handler) SweepInternal(c *gin.Context) {
	req, ok := bindSweep(c)
	if !ok {
		return
	}
	h.run(c, req)
}

func (h *Handler) run(c *gin.Context, req evolution.SweepRequest) {
	res, err := h.sweeper.RunSweep(c.Request.Context(), req)
	if err != nil {
		httpx.FailErr(c, httpx.FromError(err))
		return
	}
	httpx.OK(c, res)
}

// bindSweep reads an optional JSON body. An empty body sweeps with defaults.
func bindSweep(c *gin.Context) (evolution.SweepRequest, bool) {
	var body SweepRequest
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("failed to read request body"))
		return evolution.SweepRequest{}, false
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
			return evolution.SweepRequest{}, false
		}
	}

	threshold, err := parseThreshold(body.CustomThreshold)
	if err != nil {
		httpx.FailErr(c, httpx.FromError(err))
		return evolution.SweepRequest{}, false
	}

	return evolution.SweepRequest{TenantID: body.TenantID, Threshold: threshold}, true
}

func parseThreshold(raw json.RawMessage) (*int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, apperr.Validation("runSweep", "customThreshold must be a number")
		}
		// an explicit blank is not the same as leaving the field out
		if strings.TrimSpace(s) == "" {
			return nil, apperr.Validation("runSweep", "customThreshold must not be empty")
		}
		return evolution.ParseThreshold(s)
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return nil, apperr.Validation("runSweep", "customThreshold must be a number")
	}
	return evolution.ParseThreshold(n.String())
}
