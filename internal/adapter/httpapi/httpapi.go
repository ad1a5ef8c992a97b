// Package httpapi exposes the ztime parser, arithmetic and jitter over HTTP.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"ztime/internal/adapter/scheduler"
	"ztime/internal/config"
	"ztime/internal/shared"
	"ztime/pkg/ztime"
)

// JobLister reports the state of loop jobs.
type JobLister interface {
	LoopJobs() []scheduler.LoopJobInfo
}

// Options configures the HTTP handler.
type Options struct {
	Logger *slog.Logger
	Clock  ztime.Clock
	Rand   ztime.Rand
	Jobs   JobLister // optional
	// RatePerSecond limits requests per client IP (0 disables).
	RatePerSecond float64
	RateBurst     int
}

// Handler serves the HTTP API.
type Handler struct {
	log    *slog.Logger
	parser *ztime.Parser
	clock  ztime.Clock
	rand   ztime.Rand
	jobs   JobLister
	limit  *RateLimiter
}

// New creates a Handler.
func New(o Options) *Handler {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = ztime.SystemClock{}
	}
	if o.Rand == nil {
		o.Rand = ztime.DefaultRand()
	}
	var limit *RateLimiter
	if o.RatePerSecond > 0 {
		limit = NewRateLimiter(o.RatePerSecond, o.RateBurst)
	}
	return &Handler{
		limit:  limit,
		log:    o.Logger,
		parser: ztime.NewParser(ztime.WithClock(o.Clock), ztime.WithLogger(o.Logger)),
		clock:  o.Clock,
		rand:   o.Rand,
		jobs:   o.Jobs,
	}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// Re-registration on a shared engine overwrites the previous tag.
		if err := config.RegisterTags(v); err != nil {
			h.log.Error("register validation tags", slog.Any("error", err))
		}
	}

	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())
	if h.limit != nil {
		r.Use(h.limit.Middleware())
	}

	r.GET("/healthz", h.health)
	v1 := r.Group("/v1")
	v1.GET("/resolve", h.resolve)
	v1.POST("/shift", h.shift)
	v1.POST("/jitter", h.jitter)
	v1.GET("/jobs", h.listJobs)
	return r
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

type instantResponse struct {
	At     ztime.Time `json:"at"`
	Millis int64      `json:"millis"`
}

func newInstant(t ztime.Time) instantResponse {
	return instantResponse{At: t, Millis: t.Millis()}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "now": ztime.FromTime(h.clock.Now())})
}

type resolveQuery struct {
	Expr   string `form:"expr"`
	Jitter string `form:"jitter" binding:"omitempty,ztduration"`
}

func (h *Handler) resolve(c *gin.Context) {
	var q resolveQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, shared.MarkKind(err, shared.KindValidation))
		return
	}

	at, err := h.parser.Parse(q.Expr)
	if err != nil {
		h.fail(c, err)
		return
	}
	if q.Jitter != "" {
		amplitude, _ := ztime.ParseDuration(q.Jitter)
		at = at.JitterWith(h.rand, amplitude)
	}
	c.JSON(http.StatusOK, newInstant(at))
}

type shiftRequest struct {
	At       *ztime.Time    `json:"at" binding:"required"`
	Op       string         `json:"op" binding:"required,oneof=plus minus"`
	Duration ztime.Duration `json:"duration"`
}

func (h *Handler) shift(c *gin.Context) {
	var req shiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, shared.MarkKind(err, shared.KindValidation))
		return
	}

	out := req.At.Plus(req.Duration)
	if req.Op == "minus" {
		out = req.At.Minus(req.Duration)
	}
	c.JSON(http.StatusOK, newInstant(out))
}

type jitterRequest struct {
	At        *ztime.Time    `json:"at" binding:"required"`
	Amplitude ztime.Duration `json:"amplitude"`
}

func (h *Handler) jitter(c *gin.Context) {
	var req jitterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, shared.MarkKind(err, shared.KindValidation))
		return
	}
	c.JSON(http.StatusOK, newInstant(req.At.JitterWith(h.rand, req.Amplitude)))
}

func (h *Handler) listJobs(c *gin.Context) {
	if h.jobs == nil {
		h.fail(c, shared.Wrap(shared.ErrNotFound, "no scheduler attached"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobs.LoopJobs()})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(shared.KindOf(err))
	resp := errorResponse{Error: err.Error()}

	var pe *ztime.ParseError
	if errors.As(err, &pe) {
		resp.Code = pe.Code
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
	}
	c.AbortWithStatusJSON(status, resp)
}

func statusOf(kind shared.Kind) int {
	switch kind {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
