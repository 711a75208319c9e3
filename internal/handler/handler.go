package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/device"
	"classroll/internal/erpclient"
	"classroll/internal/logging"
)

// Authenticator signs faculty in against the ERP.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*erpclient.LoginResult, error)
}

// GatewayFactory builds the gateway a session uses with its ERP token.
type GatewayFactory func(erpToken string) attendance.Gateway

// DeviceStore persists devices and refresh tokens.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, deviceID, userID string) error
	SaveRefreshToken(ctx context.Context, t device.RefreshToken) error
	LookupRefreshToken(ctx context.Context, token string) (device.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeSession(ctx context.Context, sessionID string) (int64, error)
}

// Handler serves the classroll HTTP API.
type Handler struct {
	log      logr.Logger
	erp      Authenticator
	gateways GatewayFactory
	registry *Registry
	issuer   *auth.Issuer
	devices  DeviceStore
	now      func() time.Time
}

// New creates a handler.
func New(log logr.Logger, erp Authenticator, gateways GatewayFactory, registry *Registry, issuer *auth.Issuer, devices DeviceStore) *Handler {
	return &Handler{
		log:      log,
		erp:      erp,
		gateways: gateways,
		registry: registry,
		issuer:   issuer,
		devices:  devices,
		now:      time.Now,
	}
}

// Register mounts the API under /v1. protected runs after token auth on the
// authenticated routes, e.g. a per-session rate limit.
func (h *Handler) Register(r gin.IRouter, protected ...gin.HandlerFunc) {
	v1 := r.Group("/v1")
	v1.POST("/login", h.login)
	v1.POST("/token/refresh", h.refresh)

	authed := v1.Group("", append([]gin.HandlerFunc{auth.SessionAuth(h.issuer), h.requireSession}, protected...)...)
	authed.POST("/logout", h.logout)
	authed.GET("/subjects", h.subjects)

	att := authed.Group("/attendance")
	att.POST("/start", h.start)
	att.GET("", h.withForm(h.view))
	att.POST("/subject", h.withForm(h.setSubject))
	att.POST("/batch", h.withForm(h.setBatch))
	att.POST("/date", h.withForm(h.setDate))
	att.POST("/sessions/:label/toggle", h.withForm(h.toggleSession))
	att.POST("/resolve", h.withForm(h.resolve))
	att.POST("/roster", h.withForm(h.loadRoster))
	att.POST("/students/:id/toggle", h.withForm(h.toggleStudent))
	att.POST("/submit", h.withForm(h.submit))
	att.POST("/retry", h.withForm(h.retry))
	att.POST("/reset", h.withForm(h.reset))
}

const entryKey = "session_entry"

// logger returns the request-scoped logger, or the handler's own outside one.
func (h *Handler) logger(c *gin.Context) logr.Logger {
	return logging.FromContext(c.Request.Context(), h.log)
}

func (h *Handler) requireSession(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	e, ok := h.registry.Get(id.SessionID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired, sign in again"})
		return
	}
	c.Set(entryKey, e)
	c.Next()
}

func entryFrom(c *gin.Context) *Entry {
	return c.MustGet(entryKey).(*Entry)
}

type formHandler func(c *gin.Context, ctl *attendance.Controller) error

// withForm resolves the session's current form and renders the outcome.
func (h *Handler) withForm(fn formHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctl := entryFrom(c).Controller()
		if ctl == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "no attendance form started", "kind": attendance.KindPrecondition})
			return
		}
		if err := fn(c, ctl); err != nil {
			h.renderError(c, ctl, err)
			return
		}
		if !c.Writer.Written() {
			c.JSON(http.StatusOK, ctl.View())
		}
	}
}

func (h *Handler) renderError(c *gin.Context, ctl *attendance.Controller, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger(c).Error(err, "Attendance request failed", "path", c.FullPath())
	}
	if attendance.IsBusy(err) {
		c.Header("Retry-After", "1")
	}
	body := gin.H{"error": err.Error(), "kind": attendance.KindOf(err)}
	if ctl != nil {
		body["view"] = ctl.View()
	}
	c.JSON(status, body)
}

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	switch attendance.KindOf(err) {
	case attendance.KindInvalidSelection:
		return http.StatusUnprocessableEntity
	case attendance.KindPrecondition, attendance.KindState:
		return http.StatusConflict
	case attendance.KindUnknownStudent:
		return http.StatusNotFound
	case attendance.KindRemoteUnavailable:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
