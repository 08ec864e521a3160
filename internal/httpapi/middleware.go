package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	logx "seatwatch/pkg/logx"
)

// recovery turns a handler panic into a 500 with the standard error body.
func recovery(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panic",
					logx.String("method", c.Request.Method),
					logx.String("path", c.Request.URL.Path),
					logx.Any("panic", r),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(codeInternal, msgInternal))
			}
		}()
		c.Next()
	}
}

func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("latency", time.Since(start)),
		)
	}
}
