package main

import (
	"contact-import/batches"
	"contact-import/common"
	"contact-import/contacts"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Migrate creates all tables
func Migrate(db *gorm.DB) {
	contacts.AutoMigrate(db)
	batches.AutoMigrateBatches(db)
	common.AutoMigrateMetrics(db)
}

func main() {
	cfg := common.GetConfig()
	log := common.InitLogger(cfg)

	db := common.Init()
	Migrate(db)

	// Ensure database connection is closed on exit
	sqlDB, err := db.DB()
	if err != nil {
		log.Warnw("failed to get sql.DB", "error", err)
	} else {
		defer sqlDB.Close()
	}

	r := gin.Default()
	r.RedirectTrailingSlash = false
	r.Use(common.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	batches.RegisterRoutes(v1.Group("/batches"))
	contacts.RegisterRoutes(v1.Group("/exports"))

	log.Infow("server starting", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalw("failed to start server", "error", err)
	}
}
