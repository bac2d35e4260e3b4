// Package middleware 提供 Gin 通用中间件（日志、panic recover、指标、访问身份提取）
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/metrics"
)

// IdentityKey gin context key for the request identity
const IdentityKey = "identity"

// RequestIDKey gin context key for the request ID
const RequestIDKey = "request_id"

// Identity 请求访问身份。UserID 由上游认证层通过 X-User-ID 传入；
// SessionID 来自会话 cookie，缺失时由中间件补发。核心只消费，不签发用户身份。
type Identity struct {
	UserID    string
	SessionID string
}

// Resolved 是否已解析出登录用户
func (id Identity) Resolved() bool { return id.UserID != "" }

// GetIdentity 从 gin context 取出访问身份
func GetIdentity(c *gin.Context) Identity {
	if v, ok := c.Get(IdentityKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return Identity{}
}

// GinIdentityMiddleware 提取用户/会话身份，必要时补发会话 cookie
func GinIdentityMiddleware(cookieName string, cookieDays int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := Identity{UserID: c.GetHeader("X-User-ID")}

		sid, err := c.Cookie(cookieName)
		if err != nil || sid == "" {
			sid = uuid.New().String()
			c.SetCookie(cookieName, sid, cookieDays*24*3600, "/", "", false, true)
		}
		id.SessionID = sid

		c.Set(IdentityKey, id)
		c.Next()
	}
}

// GinLoggingMiddleware Gin 日志中间件
func GinLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDContextKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info(ctx, "HTTP request completed",
			"method", method,
			"path", path,
			"status_code", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}

// GinRecoveryMiddleware Gin panic 恢复中间件
func GinRecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := c.Get(RequestIDKey)
				logger.Error(c.Request.Context(), "HTTP request panicked",
					"request_id", requestID,
					"panic", err,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "Internal server error",
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}

// GinMetricsMiddleware HTTP 指标中间件
func GinMetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.HTTPRequestDuration.Observe(time.Since(start).Seconds())
	}
}
