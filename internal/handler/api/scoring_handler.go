package api

import (
	"context"
	"time"

	models "CryptoSignal/internal/domain/models"
	domsvc "CryptoSignal/internal/domain/service"
	xhttp "CryptoSignal/pkg/http"
	"CryptoSignal/pkg/http/middleware"
	xlogger "CryptoSignal/pkg/logger"
	"CryptoSignal/pkg/util"

	"github.com/labstack/echo/v4"
)

// LatestDecisions looks up the cached decision of a symbol.
type LatestDecisions interface {
	Latest(ctx context.Context, symbol string) (*models.DecisionEnvelope, bool, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// ScoringHandler serves the scoring core and its diagnostics over HTTP.
type ScoringHandler struct {
	logger     *xlogger.Logger
	engine     domsvc.DecisionEngine
	latest     LatestDecisions
	monitor    domsvc.ConfidenceMonitor
	calibrator domsvc.CalibrationView
	limiter    middleware.Allower
	checks     map[string]HealthCheck
	now        func() time.Time
}

func NewScoringHandler(
	logger *xlogger.Logger,
	engine domsvc.DecisionEngine,
	latest LatestDecisions,
	monitor domsvc.ConfidenceMonitor,
	calibrator domsvc.CalibrationView,
	limiter middleware.Allower,
	checks map[string]HealthCheck,
) *ScoringHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ScoringHandler{
		logger:     logger,
		engine:     engine,
		latest:     latest,
		monitor:    monitor,
		calibrator: calibrator,
		limiter:    limiter,
		checks:     checks,
		now:        time.Now,
	}
}

func (h *ScoringHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1")
	g.POST("/score", h.Score, middleware.RateLimit(h.limiter))
	g.GET("/decisions/:symbol", h.LatestDecision)
	g.GET("/confidence/stats", h.ConfidenceStats)
	g.GET("/confidence/alerts", h.ConfidenceAlerts)
	g.GET("/calibration", h.Calibration)
}

// Score evaluates a posted snapshot. Nothing is published or cached.
func (h *ScoringHandler) Score(c echo.Context) error {
	snap := &models.AssetSnapshot{}
	if verr := xhttp.ReadAndValidateRequest(c, snap); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap.Symbol = util.NormalizeSymbol(snap.Symbol)
	return xhttp.SuccessResponse(c, h.engine.EvaluateSnapshot(snap))
}

func (h *ScoringHandler) LatestDecision(c echo.Context) error {
	req := &models.DecisionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.latest == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("decision cache is not configured"))
	}

	symbol := util.NormalizeSymbol(req.Symbol)
	env, ok, err := h.latest.Latest(c.Request().Context(), symbol)
	if err != nil {
		h.logger.Error("latest decision lookup failed", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("decision cache unavailable").WithError(err))
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no decision for %s", symbol).WithParam("symbol", symbol))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, env)
}

// ConfidenceStats aggregates the confidence log. Since, when given, takes
// precedence over Window.
func (h *ScoringHandler) ConfidenceStats(c echo.Context) error {
	req := &models.StatsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	window, err := xhttp.ParseWindow(req.Window)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithParam("field", "window"))
	}
	if req.Since != "" {
		since, ok := xhttp.ParseTime(req.Since)
		if !ok || !since.Before(h.now()) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid since %q", req.Since))
		}
		// Whole seconds keep the stats cache key stable across polls.
		window = h.now().Sub(since).Truncate(time.Second)
		if window < time.Second {
			window = time.Second
		}
	}
	level, err := models.ParseConfidenceLevel(req.MinLevel)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	return xhttp.SuccessResponse(c, h.monitor.Stats(models.StatsQuery{
		Factor:   req.Factor,
		Window:   window,
		MinLevel: level,
	}))
}

func (h *ScoringHandler) ConfidenceAlerts(c echo.Context) error {
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	window, err := xhttp.ParseWindow(req.Window)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithParam("field", "window"))
	}
	return xhttp.SuccessResponse(c, h.monitor.AlertSummary(window))
}

func (h *ScoringHandler) Calibration(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.calibrator.Info())
}

// Health runs every check with a short deadline. Any failure turns the
// response into a 503.
func (h *ScoringHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	res := xhttp.HealthResponse{Status: "ok", Components: map[string]string{}}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			res.Status = "degraded"
			res.Components[name] = err.Error()
			continue
		}
		res.Components[name] = "ok"
	}
	if res.Status != "ok" {
		return xhttp.ServiceUnavailableResponse(c, res)
	}
	return xhttp.SuccessResponse(c, res)
}
