package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"docremind/internal/models"
	"docremind/internal/utils"
)

// eligibilityQueryPattern matches the periodic submitter scan so it stays out of the SQL log.
const eligibilityQueryPattern = `FROM "submitter" JOIN submission`

const (
	maxRetries = 5
	retryDelay = 5 * time.Second
)

// NewGormConfig returns the GORM configuration shared by every dialect.
func NewGormConfig(log zerolog.Logger, level logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger: utils.NewGormLogger(log, level, time.Second, eligibilityQueryPattern),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: false,
	}
}

// Open connects to PostgreSQL, tunes the pool and migrates the schema.
func Open(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	gormConfig := NewGormConfig(log, logger.Warn)

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("database connection attempt failed")
		if i < maxRetries-1 {
			log.Info().Dur("retry_in", retryDelay).Msg("retrying database connection")
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info().Msg("database connection established and migrations completed")
	return db, nil
}

// Migrate creates or updates every table the reminder pipeline uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Account{},
		&models.AccountConfig{},
		&models.EncryptedConfig{},
		&models.Template{},
		&models.Submission{},
		&models.Submitter{},
		&models.SubmissionEvent{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
