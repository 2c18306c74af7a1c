package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/middlewares"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/services"
)

// GroupHandler 群组处理器
type GroupHandler struct {
	groupService *services.GroupService
	uploads      Uploads
}

// NewGroupHandler 创建群组处理器实例
func NewGroupHandler(groupService *services.GroupService, uploads Uploads) *GroupHandler {
	return &GroupHandler{groupService: groupService, uploads: uploads}
}

// CreateGroup 创建群组
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req services.CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.groupService.Create(c.Request.Context(), middlewares.UserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, group)
}

// ListGroups 获取我的群组
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groupService.List(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, groups)
}

// GetGroup 群组详情
func (h *GroupHandler) GetGroup(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	group, err := h.groupService.Get(c.Request.Context(), middlewares.UserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, group)
}

// UpdateGroup 修改群信息
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	var req services.GroupUpdate
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.groupService.Update(c.Request.Context(), middlewares.UserID(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, group)
}

// UpdatePicture 更新群头像
func (h *GroupHandler) UpdatePicture(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	file, closer, ok := h.uploads.open(c, "picture")
	if !ok {
		return
	}
	defer closer.Close()

	group, err := h.groupService.UpdatePicture(c.Request.Context(), middlewares.UserID(c), id, file)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, group)
}

// AddMembers 添加成员
func (h *GroupHandler) AddMembers(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	var req services.AddMembersRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.groupService.AddMembers(c.Request.Context(), middlewares.UserID(c), id, req.UserIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, group)
}

// RemoveMember 移除成员
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	userID, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	if err := h.groupService.RemoveMember(c.Request.Context(), middlewares.UserID(c), id, userID); err != nil {
		respondError(c, err)
		return
	}
	success(c, nil)
}

// LeaveGroup 退出群组
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	if err := h.groupService.Leave(c.Request.Context(), middlewares.UserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	success(c, nil)
}

// DeleteGroup 解散群组
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	if err := h.groupService.Delete(c.Request.Context(), middlewares.UserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	success(c, nil)
}
