package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-danmaku/internal/model"
	"go-danmaku/internal/repository"
	"go-danmaku/internal/service"
)

// ProfileStore 描述连接配置的存取接口，便于测试替换。
type ProfileStore interface {
	Save(ctx context.Context, p *model.Profile) error
	Update(ctx context.Context, p *model.Profile) error
	FindByName(ctx context.Context, name string) (*model.Profile, error)
	List(ctx context.Context) ([]model.Profile, error)
	Delete(ctx context.Context, name string) error
}

// CommandHandler 把 connect / disconnect / status 命令暴露为 HTTP 接口。
type CommandHandler struct {
	supervisor *service.Supervisor
	profiles   ProfileStore
	logger     *zap.Logger
}

// NewCommandHandler 创建 Handler；profiles 可为 nil，此时不支持按配置名连接。
func NewCommandHandler(supervisor *service.Supervisor, profiles ProfileStore, logger *zap.Logger) *CommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandHandler{
		supervisor: supervisor,
		profiles:   profiles,
		logger:     logger.With(zap.String("component", "command")),
	}
}

// Register 挂载 /api 路由组。
func (h *CommandHandler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.POST("/connect", h.Connect)
	api.POST("/disconnect", h.Disconnect)
	api.GET("/status", h.Status)

	profiles := api.Group("/profiles")
	profiles.GET("", h.ListProfiles)
	profiles.POST("", h.CreateProfile)
	profiles.GET("/:name", h.GetProfile)
	profiles.PUT("/:name", h.UpdateProfile)
	profiles.DELETE("/:name", h.DeleteProfile)
}

type connectBody struct {
	Profile string `json:"profile"`
	service.ConnectRequest
}

func (h *CommandHandler) Connect(c *gin.Context) {
	var body connectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体解析失败: " + err.Error()})
		return
	}

	req := body.ConnectRequest
	if body.Profile != "" {
		if h.profiles == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "profile store not configured"})
			return
		}
		p, err := h.profiles.FindByName(c.Request.Context(), body.Profile)
		if err != nil {
			h.writeError(c, err)
			return
		}
		req = service.ConnectRequest{Host: p.Host, Port: p.Port, UID: p.UID, RoomID: p.RoomID, Token: p.Token}
	}

	res, err := h.supervisor.Connect(req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

func (h *CommandHandler) Disconnect(c *gin.Context) {
	res, err := h.supervisor.Disconnect()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

func (h *CommandHandler) Status(c *gin.Context) {
	resp := gin.H{"connected": h.supervisor.IsConnected()}
	if req, ok := h.supervisor.Current(); ok {
		resp["host"] = req.Host
		resp["port"] = req.Port
		resp["room"] = req.RoomID
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CommandHandler) ListProfiles(c *gin.Context) {
	if !h.requireProfiles(c) {
		return
	}
	profiles, err := h.profiles.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	for i := range profiles {
		profiles[i].Token = maskToken(profiles[i].Token)
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func (h *CommandHandler) CreateProfile(c *gin.Context) {
	if !h.requireProfiles(c) {
		return
	}
	var p model.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	if p.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name 不能为空"})
		return
	}
	p.ID = 0
	if err := h.profiles.Save(c.Request.Context(), &p); err != nil {
		h.writeError(c, err)
		return
	}
	p.Token = maskToken(p.Token)
	c.JSON(http.StatusCreated, p)
}

func (h *CommandHandler) GetProfile(c *gin.Context) {
	if !h.requireProfiles(c) {
		return
	}
	p, err := h.profiles.FindByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	p.Token = maskToken(p.Token)
	c.JSON(http.StatusOK, p)
}

func (h *CommandHandler) UpdateProfile(c *gin.Context) {
	if !h.requireProfiles(c) {
		return
	}
	var p model.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	p.Name = c.Param("name")
	if err := h.profiles.Update(c.Request.Context(), &p); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CommandHandler) DeleteProfile(c *gin.Context) {
	if !h.requireProfiles(c) {
		return
	}
	if err := h.profiles.Delete(c.Request.Context(), c.Param("name")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CommandHandler) requireProfiles(c *gin.Context) bool {
	if h.profiles == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "profile store not configured"})
		return false
	}
	return true
}

// writeError 把领域错误映射为 HTTP 状态码，错误文本原样返回。
func (h *CommandHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrAlreadyConnected), errors.Is(err, service.ErrNotConnected):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrProfileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicateProfile):
		status = http.StatusConflict
	default:
		h.logger.Error("命令执行失败", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// maskToken 只保留末 4 位。
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	masked := make([]byte, len(token))
	for i := range masked[:len(token)-4] {
		masked[i] = '*'
	}
	copy(masked[len(token)-4:], token[len(token)-4:])
	return string(masked)
}
