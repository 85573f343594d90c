package db

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the process-wide gorm handle, set by InitMySQL or InitSQLite
var DB *gorm.DB

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
		// unique violations surface as gorm.ErrDuplicatedKey on every dialect
		TranslateError: true,
	}
}

// InitMySQL opens the MySQL connection pool and verifies it
func InitMySQL(dsn string) error {
	gdb, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping MySQL: %w", err)
	}

	DB = gdb
	logrus.Info("MySQL connected successfully")
	return nil
}

// InitSQLite opens a single-file SQLite database, for local runs and demos
func InitSQLite(path string) error {
	gdb, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return fmt.Errorf("failed to open SQLite database %s: %w", path, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// SQLite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	DB = gdb
	logrus.WithField("path", path).Info("SQLite opened successfully")
	return nil
}

// GetDB returns the process-wide gorm handle
func GetDB() *gorm.DB {
	return DB
}

// Close closes the connection pool
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
