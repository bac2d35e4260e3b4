// Package http 提供事件流的 SSE 接入
package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/storefront/internal/fanout"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/middleware"
)

// SSEHandler 把 Hub 订阅暴露为 Server-Sent Events 长连接
type SSEHandler struct {
	hub *fanout.Hub
}

func NewSSEHandler(hub *fanout.Hub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// RegisterRoutes 注册事件流路由
func (h *SSEHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/events", h.Stream)
}

// Stream 建立 SSE 连接。客户端始终订阅自己身份派生的私有组,
// 可通过 groups 参数附加广播组(admin-broadcast / order-broadcast)。
func (h *SSEHandler) Stream(c *gin.Context) {
	ident := middleware.GetIdentity(c)

	var groups []string
	if ident.UserID != "" {
		groups = append(groups, fanout.UserGroup(ident.UserID))
	}
	if ident.SessionID != "" {
		groups = append(groups, fanout.SessionGroup(ident.SessionID))
	}
	// 管理员身份由上游认证层断言
	isAdmin := c.GetHeader("X-User-Role") == "admin"
	if isAdmin {
		groups = append(groups, fanout.GroupAdmin)
	}
	for _, g := range strings.Split(c.Query("groups"), ",") {
		switch strings.TrimSpace(g) {
		case fanout.GroupAdmin:
			if isAdmin {
				continue // 已订阅
			}
		case fanout.GroupOrders:
			groups = append(groups, fanout.GroupOrders)
		}
	}
	if len(groups) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no subscribable groups"})
		return
	}

	sub := h.hub.Subscribe(groups...)
	defer h.hub.Unsubscribe(sub)

	logger.Info(c.Request.Context(), "sse subscriber connected", "groups", groups)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev)
			return true
		case <-clientGone:
			return false
		}
	})
}
