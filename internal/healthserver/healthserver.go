// Package healthserver is the bridge's operator-facing side channel: a
// small gin router exposing liveness and Prometheus metrics. It is never
// the read-serving API end clients use — it serves only bridge-internal
// health and metrics.
package healthserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Logger is a gin middleware that logs every request with method, path,
// status code, and latency, adapted to the bridge's structured logger.
func Logger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"client":  c.ClientIP(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Info("healthserver request")
	}
}

// Recovery wraps gin's panic recovery, logging the panic in a structured
// way rather than gin's default plain-text dump.
func Recovery(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithField("panic", err).Error("healthserver handler panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

// LivenessCheck reports whether the supervisor is ticking and the queues
// are draining. Returns ok=false with a reason when liveness looks off.
type LivenessCheck func() (ok bool, reason string)

// New builds the gin router. check is polled on every /healthz request; a
// nil check always reports healthy. gatherer backs /metrics; a nil
// gatherer falls back to prometheus.DefaultGatherer, so callers that don't
// run their own Bridge-scoped registry (tests, simple embeddings) still
// get a working endpoint.
func New(log *logrus.Logger, check LivenessCheck, gatherer prometheus.Gatherer) *gin.Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(Logger(log), Recovery(log))

	r.GET("/healthz", func(c *gin.Context) {
		if check == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ok, reason := check()
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "reason": reason})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}
