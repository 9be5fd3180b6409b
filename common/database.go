package common

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var db *gorm.DB

// Init opens the database at the configured path and stores the shared handle
func Init() *gorm.DB {
	return InitWithDSN(GetConfig().DatabasePath)
}

// InitWithDSN opens a database at an explicit path. Tests use this with a
// temporary file so each test gets an isolated store.
func InitWithDSN(dsn string) *gorm.DB {
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		Log().Fatalw("failed to open database", "dsn", dsn, "error", err)
	}
	db = conn
	return db
}

// GetDB returns the shared database handle
func GetDB() *gorm.DB {
	if db == nil {
		return Init()
	}
	return db
}
