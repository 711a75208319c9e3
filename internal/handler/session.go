package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/device"
	"classroll/internal/erpclient"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	DeviceID string `json:"device_id" binding:"required,max=128"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	SessionID    string `json:"session_id"`
}

type loginResponse struct {
	tokenResponse
	UserID      string               `json:"user_id"`
	Name        string               `json:"name"`
	InstituteID string               `json:"institute_id"`
	Subjects    []attendance.Subject `json:"subjects"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	res, err := h.erp.Login(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, erpclient.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case errors.Is(err, erpclient.ErrNotFaculty):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger(c).Error(err, "ERP login failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "attendance server unavailable"})
		return
	}

	session := res.User.Session()
	entry := h.registry.Add(session, h.gateways(res.Token))

	if err := h.devices.UpsertDevice(ctx, req.DeviceID, session.UserID); err != nil {
		h.logger(c).Error(err, "Device upsert failed", "device", req.DeviceID)
	}
	tokens, err := h.issue(c, auth.Identity{UserID: session.UserID, SessionID: entry.ID, DeviceID: req.DeviceID})
	if err != nil {
		h.registry.Remove(entry.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	h.logger(c).Info("Faculty signed in", "user", session.UserID, "session", entry.ID, "subjects", len(session.Subjects))
	c.JSON(http.StatusCreated, loginResponse{
		tokenResponse: tokens,
		UserID:        session.UserID,
		Name:          session.Name,
		InstituteID:   session.InstituteID,
		Subjects:      session.Subjects,
	})
}

func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	claims, err := h.issuer.Parse(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	stored, err := h.devices.LookupRefreshToken(ctx, req.RefreshToken)
	if errors.Is(err, device.ErrTokenNotFound) || (err == nil && !stored.Usable(h.now())) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token revoked or expired"})
		return
	}
	if err != nil {
		h.logger(c).Error(err, "Refresh token lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token store unavailable"})
		return
	}
	if _, ok := h.registry.Get(claims.SessionID); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired, sign in again"})
		return
	}

	if err := h.devices.RevokeRefreshToken(ctx, req.RefreshToken); err != nil {
		h.logger(c).Error(err, "Refresh token revoke failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token store unavailable"})
		return
	}
	tokens, err := h.issue(c, claims.Identity())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *Handler) issue(c *gin.Context, id auth.Identity) (tokenResponse, error) {
	pair, err := h.issuer.Issue(id)
	if err != nil {
		return tokenResponse{}, err
	}
	err = h.devices.SaveRefreshToken(c.Request.Context(), device.RefreshToken{
		Token:     pair.RefreshToken,
		DeviceID:  id.DeviceID,
		SessionID: id.SessionID,
		ExpiresAt: pair.RefreshExp,
	})
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExp.Unix(),
		SessionID:    id.SessionID,
	}, nil
}

func (h *Handler) logout(c *gin.Context) {
	e := entryFrom(c)
	if e.submitting() {
		c.JSON(http.StatusConflict, gin.H{"error": attendance.ErrBusy.Error(), "kind": attendance.KindState})
		return
	}
	h.registry.Remove(e.ID)
	if _, err := h.devices.RevokeSession(c.Request.Context(), e.ID); err != nil {
		h.logger(c).Error(err, "Revoking session tokens failed", "session", e.ID)
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) subjects(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subjects": entryFrom(c).Session.Subjects})
}
