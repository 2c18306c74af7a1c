package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/middlewares"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/services"
)

// MessageHandler 消息处理器
type MessageHandler struct {
	messageService *services.MessageService
	uploads        Uploads
}

func NewMessageHandler(messageService *services.MessageService, uploads Uploads) *MessageHandler {
	return &MessageHandler{messageService: messageService, uploads: uploads}
}

// SendDirect 发送私聊消息
func (h *MessageHandler) SendDirect(c *gin.Context) {
	to, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	var req services.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.messageService.SendDirect(c.Request.Context(), middlewares.UserID(c), to, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, msg)
}

// ListDirect 私聊历史
func (h *MessageHandler) ListDirect(c *gin.Context) {
	other, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	before, limit, ok := page(c)
	if !ok {
		return
	}
	msgs, err := h.messageService.ListDirect(c.Request.Context(), middlewares.UserID(c), other, before, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, msgs)
}

// SendGroup 发送群消息
func (h *MessageHandler) SendGroup(c *gin.Context) {
	groupID, ok := paramUint(c, "groupId")
	if !ok {
		return
	}
	var req services.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.messageService.SendGroup(c.Request.Context(), middlewares.UserID(c), groupID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, msg)
}

// ListGroup 群聊历史
func (h *MessageHandler) ListGroup(c *gin.Context) {
	groupID, ok := paramUint(c, "groupId")
	if !ok {
		return
	}
	before, limit, ok := page(c)
	if !ok {
		return
	}
	msgs, err := h.messageService.ListGroup(c.Request.Context(), middlewares.UserID(c), groupID, before, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, msgs)
}

// Delete 撤回消息
func (h *MessageHandler) Delete(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	if err := h.messageService.Delete(c.Request.Context(), middlewares.UserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	success(c, nil)
}

// React 表情回应
func (h *MessageHandler) React(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	var req services.ReactRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.messageService.React(c.Request.Context(), middlewares.UserID(c), id, req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, msg)
}

func (h *MessageHandler) Delivered(c *gin.Context) {
	h.mark(c, h.messageService.MarkDelivered)
}

func (h *MessageHandler) Read(c *gin.Context) {
	h.mark(c, h.messageService.MarkRead)
}

func (h *MessageHandler) mark(c *gin.Context, fn func(context.Context, uint, int64) (*models.Message, error)) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	msg, err := fn(c.Request.Context(), middlewares.UserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, msg)
}

// Upload 上传聊天附件
func (h *MessageHandler) Upload(c *gin.Context) {
	file, closer, ok := h.uploads.open(c, "file")
	if !ok {
		return
	}
	defer closer.Close()

	up, err := h.messageService.UploadMedia(c.Request.Context(), file)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, up)
}
