package daemon

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ginLogger logs every request through logrus. Program runs are long, so
// latency is reported in milliseconds.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		stop := time.Since(start)
		latency := int(math.Ceil(float64(stop.Nanoseconds()) / 1000000.0))
		statusCode := c.Writer.Status()
		dataLength := c.Writer.Size()
		if dataLength < 0 {
			dataLength = 0
		}

		entry := logger.WithFields(logrus.Fields{
			"statusCode": statusCode,
			"latency":    latency,
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": dataLength,
		})

		msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, statusCode, latency)
		switch {
		case statusCode >= http.StatusInternalServerError:
			if len(c.Errors) > 0 {
				msg += ": " + c.Errors.Last().Error()
			}
			entry.Error(msg)
		case statusCode >= http.StatusBadRequest:
			if len(c.Errors) > 0 {
				msg += ": " + c.Errors.Last().Error()
			}
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}
