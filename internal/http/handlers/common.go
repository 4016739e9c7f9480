package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bookingcore/internal/domain"
	"bookingcore/internal/http/middleware"
	"bookingcore/internal/logger"
	"bookingcore/internal/services"
	"bookingcore/internal/utils"
)

// Handler serves the booking API on top of the services.
type Handler struct {
	Deps          services.Deps
	Log           logger.Logger
	WebhookSecret string
	// Ping reports store health; nil means nothing to check.
	Ping func(c *gin.Context) error
}

func New(d services.Deps, log logger.Logger, webhookSecret string) *Handler {
	return &Handler{Deps: d, Log: log, WebhookSecret: webhookSecret}
}

// deps tags the shared dependencies with this request's id.
func (h *Handler) deps(c *gin.Context) services.Deps {
	return h.Deps.WithRequestID(middleware.GetRequestID(c))
}

// BindOptionalJSON parses the body when one is sent. Endpoints using it take
// the version from If-Match when the body is absent.
func BindOptionalJSON[T any](c *gin.Context, dst *T) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "validation_error", "invalid payload", err.Error())
		return false
	}
	return true
}

// BindJSONOrError ensures body is present and parsable.
func BindJSONOrError[T any](c *gin.Context, dst *T) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		respondError(c, http.StatusBadRequest, "validation_error", "empty body", nil)
		return false
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", "invalid payload", err.Error())
		return false
	}
	return true
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "validation_error", "invalid booking id", nil)
		return 0, false
	}
	return id, true
}

func actor(c *gin.Context) domain.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}

// expectedVersion takes the body's version, falling back to If-Match.
func expectedVersion(c *gin.Context, body int64) int64 {
	if body > 0 {
		return body
	}
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func setETag(c *gin.Context, version int64) {
	c.Header("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}

// amount accepts minor units as a JSON number, or a decimal string such as
// "1,234.50".
type amount int64

func (a *amount) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		m, err := utils.ParseMoney(raw)
		if err != nil {
			return err
		}
		*a = amount(m)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = amount(n)
	return nil
}

func (a amount) Money() domain.Money { return domain.Money(a) }

func optionalMoney(p *amount) *domain.Money {
	if p == nil {
		return nil
	}
	m := p.Money()
	return &m
}
