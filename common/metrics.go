package common

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApiMetric tracks API performance metrics
type ApiMetric struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RequestID     string    `gorm:"not null" json:"request_id"`
	Endpoint      string    `gorm:"not null" json:"endpoint"`
	Method        string    `gorm:"not null" json:"method"`
	StatusCode    int       `gorm:"not null" json:"status_code"`
	DurationMs    int       `gorm:"not null" json:"duration_ms"`
	RowsProcessed int       `gorm:"default:0" json:"rows_processed"`
	Timestamp     time.Time `gorm:"not null" json:"timestamp"`
}

func (ApiMetric) TableName() string { return "api_metrics" }

// AutoMigrateMetrics creates the metrics table
func AutoMigrateMetrics(db *gorm.DB) {
	db.AutoMigrate(&ApiMetric{})
}

// MetricsMiddleware tags each request with an ID and records a metric row
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		startTime := time.Now()

		c.Next()

		durationMs := int(time.Since(startTime).Milliseconds())

		// Rows processed is set by handlers that touch batch data
		rowsProcessed := 0
		if rows, exists := c.Get("rows_processed"); exists {
			if r, ok := rows.(int); ok {
				rowsProcessed = r
			}
		}

		metric := ApiMetric{
			RequestID:     requestID,
			Endpoint:      c.FullPath(),
			Method:        c.Request.Method,
			StatusCode:    c.Writer.Status(),
			DurationMs:    durationMs,
			RowsProcessed: rowsProcessed,
			Timestamp:     startTime,
		}

		// Save metric asynchronously
		go func() {
			if err := GetDB().Create(&metric).Error; err != nil {
				Log().Debugw("failed to save request metric", "error", err)
			}
		}()
	}
}
