package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kcubez/crypto-predictor/internal/ledger"
)

// Fetcher is the upstream used by the proxy endpoint.
type Fetcher interface {
	FetchKlines(ctx context.Context, symbol, interval string, limit int) (json.RawMessage, error)
	FetchPrice(ctx context.Context, symbol string) (json.RawMessage, error)
}

// Handler exposes the prediction API and the Binance proxy.
type Handler struct {
	ledger   ledger.Ledger
	fetcher  Fetcher
	proxyKey string // shared secret for the proxy endpoint
	adminKey string // shared secret for destructive endpoints
	logger   zerolog.Logger
}

// NewHandler creates the API handler.
func NewHandler(led ledger.Ledger, fetcher Fetcher, proxyKey, adminKey string) *Handler {
	return &Handler{
		ledger:   led,
		fetcher:  fetcher,
		proxyKey: proxyKey,
		adminKey: adminKey,
		logger:   log.With().Str("component", "api_handler").Logger(),
	}
}

// RegisterRoutes wires the handler into an echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Use(RequestLogger(h.logger), RequestMetrics())
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/api/keep-alive", h.KeepAlive)

	g := e.Group("/api/predictions")
	g.GET("/latest", h.Latest)
	g.GET("/history", h.History)
	g.GET("/stats", h.Stats)
	e.DELETE("/api/predictions", h.PurgeAll)
	e.DELETE("/api/predictions/latest", h.PurgeLatest)

	e.GET("/api/binance/proxy", h.Proxy)
}

// KeepAlive is a liveness ping for external uptime monitors.
func (h *Handler) KeepAlive(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Latest returns the most recent prediction regardless of status.
func (h *Handler) Latest(c echo.Context) error {
	rec, err := h.ledger.Latest(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Latest prediction lookup failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load prediction")
	}
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no predictions yet")
	}
	return c.JSON(http.StatusOK, rec)
}

// History returns all predictions, newest first, plus accuracy stats.
func (h *Handler) History(c echo.Context) error {
	ctx := c.Request().Context()

	records, err := h.ledger.History(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("History lookup failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load history")
	}
	stats, err := h.ledger.AccuracyStats(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Stats lookup failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load stats")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"predictions": records,
		"stats":       stats,
	})
}

// Stats returns accuracy statistics over the whole ledger.
func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.ledger.AccuracyStats(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Stats lookup failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load stats")
	}
	return c.JSON(http.StatusOK, stats)
}

// PurgeAll deletes every prediction. Admin only.
func (h *Handler) PurgeAll(c echo.Context) error {
	if !h.adminAuthorized(c) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin key")
	}
	if err := h.ledger.PurgeAll(c.Request().Context()); err != nil {
		h.logger.Error().Err(err).Msg("Purge failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to purge predictions")
	}
	h.logger.Warn().Msg("All predictions purged")
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// PurgeLatest deletes the most recent prediction. Admin only.
func (h *Handler) PurgeLatest(c echo.Context) error {
	if !h.adminAuthorized(c) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin key")
	}
	if err := h.ledger.PurgeLatest(c.Request().Context()); err != nil {
		h.logger.Error().Err(err).Msg("Purge latest failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to purge prediction")
	}
	h.logger.Warn().Msg("Latest prediction purged")
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// proxyResponse is the envelope returned by the proxy endpoint.
type proxyResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Proxy forwards klines/price requests to Binance for callers behind
// IP-restricted egress. Guarded by a static shared secret compared
// exactly: a capability token, not real authentication.
func (h *Handler) Proxy(c echo.Context) error {
	key := c.QueryParam("key")
	if h.proxyKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.proxyKey)) != 1 {
		h.logger.Warn().Msg("Proxy request with invalid key")
		return c.JSON(http.StatusUnauthorized, proxyResponse{
			Success:   false,
			Error:     "unauthorized: invalid API key",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	symbol := c.QueryParam("symbol")
	if symbol == "" {
		symbol = "BTCUSDT"
	}

	ctx := c.Request().Context()
	var data json.RawMessage
	var err error

	switch endpoint := c.QueryParam("endpoint"); endpoint {
	case "", "klines":
		interval := c.QueryParam("interval")
		if interval == "" {
			interval = "1d"
		}
		limit := 1000
		if l := c.QueryParam("limit"); l != "" {
			if v, perr := strconv.Atoi(l); perr == nil && v > 0 {
				limit = v
			}
		}
		data, err = h.fetcher.FetchKlines(ctx, symbol, interval, limit)
	case "price":
		data, err = h.fetcher.FetchPrice(ctx, symbol)
	default:
		return c.JSON(http.StatusBadRequest, proxyResponse{
			Success:   false,
			Error:     "invalid endpoint",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	if err != nil {
		h.logger.Error().Err(err).Msg("Proxy fetch failed")
		return c.JSON(http.StatusBadGateway, proxyResponse{
			Success:   false,
			Error:     err.Error(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(http.StatusOK, proxyResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) adminAuthorized(c echo.Context) bool {
	key := c.QueryParam("key")
	if key == "" {
		key = c.Request().Header.Get("X-Admin-Key")
	}
	return h.adminKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(h.adminKey)) == 1
}
