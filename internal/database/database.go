package database

import (
	"fmt"
	"time"

	"engagement-service/internal/config"
	"engagement-service/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	DB *gorm.DB
}

func New(cfg config.DatabaseConfig, log *logrus.Logger) (*Database, error) {
	switch cfg.Driver {
	case "postgres":
		return newPostgres(cfg, log)
	case "sqlite":
		return NewSQLite(cfg.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func newPostgres(cfg config.DatabaseConfig, log *logrus.Logger) (*Database, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := migrate(db); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"host": cfg.Host,
		"db":   cfg.DBName,
	}).Info("connected to PostgreSQL")

	return &Database{DB: db}, nil
}

// NewSQLite opens a single-connection SQLite database. path may be ":memory:".
func NewSQLite(path string, log *logrus.Logger) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql DB: %w", err)
	}

	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		return nil, err
	}

	log.WithField("path", path).Info("opened SQLite database")

	return &Database{DB: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.ViewerProfile{},
		&model.XPEvent{},
		&model.SpinTransaction{},
		&model.ProcessedEvent{},
		&model.GifterTotal{},
		&model.Setting{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
