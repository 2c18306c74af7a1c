package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/middlewares"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/services"
)

// StatusHandler 动态处理器
type StatusHandler struct {
	statusService *services.StatusService
	uploads       Uploads
}

func NewStatusHandler(statusService *services.StatusService, uploads Uploads) *StatusHandler {
	return &StatusHandler{statusService: statusService, uploads: uploads}
}

// Create accepts either a multipart upload (file, caption, background_color)
// or a JSON body with structured content.
func (h *StatusHandler) Create(c *gin.Context) {
	var req services.CreateStatusRequest

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		file, closer, ok := h.uploads.open(c, "file")
		if !ok {
			return
		}
		defer closer.Close()
		req.File = file
		req.Caption = c.PostForm("caption")
		req.BackgroundColor = c.PostForm("background_color")
	} else {
		var content services.StatusContent
		if !bindJSON(c, &content) {
			return
		}
		req.Content = &content
	}

	item, err := h.statusService.CreateStatus(c.Request.Context(), middlewares.UserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, item)
}

// Feed 动态列表
func (h *StatusHandler) Feed(c *gin.Context) {
	feed, err := h.statusService.ListFeed(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, feed)
}

func (h *StatusHandler) Get(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	item, err := h.statusService.GetStatus(c.Request.Context(), middlewares.UserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, item)
}

// View 标记动态已读
func (h *StatusHandler) View(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	res, err := h.statusService.MarkViewed(c.Request.Context(), middlewares.UserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, res)
}

type bulkViewRequest struct {
	StatusIDs []json.RawMessage `json:"status_ids" binding:"required"`
}

// ViewBulk marks many statuses viewed. Ids may be JSON numbers or strings;
// anything else is counted as skipped.
func (h *StatusHandler) ViewBulk(c *gin.Context) {
	var req bulkViewRequest
	if !bindJSON(c, &req) {
		return
	}
	candidates := make([]string, len(req.StatusIDs))
	for i, raw := range req.StatusIDs {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		candidates[i] = s
	}

	res, err := h.statusService.MarkViewedBulk(c.Request.Context(), middlewares.UserID(c), candidates)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, res)
}

func (h *StatusHandler) Viewers(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	viewers, err := h.statusService.ListViewers(c.Request.Context(), middlewares.UserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, viewers)
}

func (h *StatusHandler) Delete(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	if err := h.statusService.DeleteStatus(c.Request.Context(), middlewares.UserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	success(c, nil)
}
