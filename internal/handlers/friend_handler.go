package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/middlewares"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/services"
)

// FriendHandler 好友处理器
type FriendHandler struct {
	friendService *services.FriendService
}

func NewFriendHandler(friendService *services.FriendService) *FriendHandler {
	return &FriendHandler{friendService: friendService}
}

// peerAction runs fn against the :userId path parameter.
func (h *FriendHandler) peerAction(c *gin.Context, fn func(ctx context.Context, me, peer uint) error) {
	peer, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), middlewares.UserID(c), peer); err != nil {
		respondError(c, err)
		return
	}
	success(c, nil)
}

func (h *FriendHandler) SendRequest(c *gin.Context) {
	h.peerAction(c, h.friendService.SendRequest)
}

func (h *FriendHandler) DeclineRequest(c *gin.Context) {
	h.peerAction(c, h.friendService.DeclineRequest)
}

func (h *FriendHandler) CancelRequest(c *gin.Context) {
	h.peerAction(c, h.friendService.CancelRequest)
}

func (h *FriendHandler) Unfriend(c *gin.Context) {
	h.peerAction(c, h.friendService.Unfriend)
}

func (h *FriendHandler) Block(c *gin.Context) {
	h.peerAction(c, h.friendService.Block)
}

func (h *FriendHandler) Unblock(c *gin.Context) {
	h.peerAction(c, h.friendService.Unblock)
}

// AcceptRequest 接受好友请求
func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	from, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	friend, err := h.friendService.AcceptRequest(c.Request.Context(), middlewares.UserID(c), from)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, friend)
}

// ListFriends 好友列表
func (h *FriendHandler) ListFriends(c *gin.Context) {
	friends, err := h.friendService.ListFriends(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, friends)
}

func (h *FriendHandler) ListRequests(c *gin.Context) {
	reqs, err := h.friendService.ListRequests(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, reqs)
}

func (h *FriendHandler) ListBlocked(c *gin.Context) {
	users, err := h.friendService.ListBlocked(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, users)
}

// Search 搜索用户
func (h *FriendHandler) Search(c *gin.Context) {
	results, err := h.friendService.Search(c.Request.Context(), middlewares.UserID(c), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, results)
}
