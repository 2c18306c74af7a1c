package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/middlewares"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/services"
)

// ProfileHandler 个人资料处理器
type ProfileHandler struct {
	profileService *services.ProfileService
	uploads        Uploads
}

func NewProfileHandler(profileService *services.ProfileService, uploads Uploads) *ProfileHandler {
	return &ProfileHandler{profileService: profileService, uploads: uploads}
}

// GetProfile 查看用户资料
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	profile, err := h.profileService.Get(c.Request.Context(), middlewares.UserID(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, profile)
}

// UpdateProfile 修改资料
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var req services.ProfileUpdate
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.profileService.Update(c.Request.Context(), middlewares.UserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, user)
}

// UploadPicture 上传头像
func (h *ProfileHandler) UploadPicture(c *gin.Context) {
	file, closer, ok := h.uploads.open(c, "picture")
	if !ok {
		return
	}
	defer closer.Close()

	user, err := h.profileService.UploadPicture(c.Request.Context(), middlewares.UserID(c), file)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, user)
}

// RemovePicture 删除头像
func (h *ProfileHandler) RemovePicture(c *gin.Context) {
	user, err := h.profileService.RemovePicture(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, user)
}
