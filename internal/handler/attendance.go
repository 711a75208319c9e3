package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classroll/internal/attendance"
)

func (h *Handler) start(c *gin.Context) {
	var req struct {
		Mode attendance.Mode `json:"mode" binding:"required,oneof=take update"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctl, err := entryFrom(c).Start(req.Mode, h.log)
	if err != nil {
		h.renderError(c, nil, err)
		return
	}
	c.JSON(http.StatusCreated, ctl.View())
}

func (h *Handler) view(c *gin.Context, ctl *attendance.Controller) error {
	return nil
}

// bindField reads a single string field from the JSON body.
func bindField(c *gin.Context, name string) (string, bool) {
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	v, ok := body[name]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required"})
		return "", false
	}
	return v, true
}

func (h *Handler) setSubject(c *gin.Context, ctl *attendance.Controller) error {
	id, ok := bindField(c, "subject_id")
	if !ok {
		return nil
	}
	return ctl.SetSubject(id)
}

func (h *Handler) setBatch(c *gin.Context, ctl *attendance.Controller) error {
	batch, ok := bindField(c, "batch")
	if !ok {
		return nil
	}
	return ctl.SetBatch(batch)
}

func (h *Handler) setDate(c *gin.Context, ctl *attendance.Controller) error {
	raw, ok := bindField(c, "date")
	if !ok {
		return nil
	}
	date, err := attendance.ParseDate(raw)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "date must be YYYY-MM-DD", "kind": attendance.KindInvalidSelection})
		return nil
	}
	return ctl.SetDate(date)
}

func (h *Handler) toggleSession(c *gin.Context, ctl *attendance.Controller) error {
	return ctl.ToggleSession(c.Param("label"))
}

func (h *Handler) resolve(c *gin.Context, ctl *attendance.Controller) error {
	return ctl.Resolve(c.Request.Context())
}

func (h *Handler) loadRoster(c *gin.Context, ctl *attendance.Controller) error {
	return ctl.LoadRoster(c.Request.Context())
}

func (h *Handler) toggleStudent(c *gin.Context, ctl *attendance.Controller) error {
	return ctl.ToggleStudent(c.Param("id"))
}

type submitResponse struct {
	Mode     attendance.WriteMode `json:"write_mode"`
	RecordID string               `json:"record_id,omitempty"`
	Sessions []string             `json:"sessions"`
	Present  int                  `json:"present_count"`
	Total    int                  `json:"total"`
	View     attendance.View      `json:"view"`
}

func (h *Handler) submit(c *gin.Context, ctl *attendance.Controller) error {
	w, err := ctl.Submit(c.Request.Context())
	if err != nil {
		return err
	}
	present := 0
	for _, e := range w.Entries {
		if e.Status == attendance.StatusPresent {
			present++
		}
	}
	res := submitResponse{
		Mode:     w.Mode,
		Sessions: w.Sessions,
		Present:  present,
		Total:    len(w.Entries),
		View:     ctl.View(),
	}
	if rec, ok := ctl.Existing(); ok {
		res.RecordID = rec.ID
	}
	c.JSON(http.StatusOK, res)
	return nil
}

func (h *Handler) retry(c *gin.Context, ctl *attendance.Controller) error {
	return ctl.Retry(c.Request.Context())
}

func (h *Handler) reset(c *gin.Context, ctl *attendance.Controller) error {
	return ctl.Reset()
}
