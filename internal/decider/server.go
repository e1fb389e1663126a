package decider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type Handler struct {
	svc       *Service
	validate  *validator.Validate
	log       zerolog.Logger
	decisions *prometheus.CounterVec
}

func NewHandler(svc *Service, reg prometheus.Registerer, log zerolog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		log:      log.With().Str("component", "http").Logger(),
		decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vwaprelay_decider_decisions_total",
			Help: "Decisions served, by action",
		}, []string{"action"}),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/decide", h.Decide)
	e.GET("/healthz", h.Health)
}

func (h *Handler) Decide(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"errors": validationErrors(err)})
	}
	if err := h.validate.StructCtx(c.Request().Context(), &req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"errors": validationErrors(err)})
	}

	h.log.Info().
		Str("symbol", req.SymbolName).
		Float64("price", req.LastPrice).
		Int64("size", req.LastSize).
		Float64("bid", req.BidPrice).
		Float64("ask", req.AskPrice).
		Int("position", req.PositionQty).
		Str("session", req.SessionDate).
		Msg("received tick")

	resp, err := h.svc.Decide(req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"errors": validationErrors(err)})
	}
	h.decisions.WithLabelValues(resp.Action).Inc()
	h.log.Info().
		Str("action", resp.Action).
		Str("side", resp.Side).
		Int("qty", resp.Quantity).
		Float64("limit", resp.LimitPrice).
		Str("order_type", resp.OrderType).
		Msg("decision")
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func validationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag()),
			})
		}
		return out
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

// NewServer builds the echo instance with recovery, request logging and
// /metrics.
func NewServer(h *Handler, gatherer prometheus.Gatherer, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(recoverMiddleware(log))
	e.Use(requestLogging(log))
	h.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return e
}

func recoverMiddleware(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("path", c.Path()).Msg("handler panic")
					err = c.JSON(http.StatusInternalServerError, map[string]any{
						"status":  http.StatusInternalServerError,
						"message": "Internal Server Error",
					})
				}
			}()
			return next(c)
		}
	}
}

func requestLogging(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			log.Debug().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("request")
			return err
		}
	}
}
