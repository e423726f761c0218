package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TotalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	DetectionsSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detections_saved_total",
			Help: "Total number of detections persisted",
		},
		[]string{"status"},
	)

	ImagesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "detection_images_uploaded_total",
			Help: "Total number of images stored in object storage",
		},
	)

	SecondaryImageFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "secondary_image_failures_total",
			Help: "Total number of secondary images that failed to upload or persist",
		},
	)

	RateLimitRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total number of requests rejected by the per-device rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(TotalRequests)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DetectionsSaved)
	prometheus.MustRegister(ImagesUploaded)
	prometheus.MustRegister(SecondaryImageFailures)
	prometheus.MustRegister(RateLimitRejections)
}

// Middleware records request counts and durations per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		c.Next()

		duration := time.Since(start).Seconds()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
		TotalRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
