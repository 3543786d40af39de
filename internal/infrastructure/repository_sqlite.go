package infrastructure

import (
	"errors"
	"fmt"

	"github.com/yourusername/yt-extract-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteAttemptRepository implements domain.AttemptRepository using SQLite
type SQLiteAttemptRepository struct {
	db *gorm.DB
}

// NewSQLiteAttemptRepository creates a new SQLite repository
func NewSQLiteAttemptRepository(dbPath string) (*SQLiteAttemptRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Attempt{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteAttemptRepository{db: db}, nil
}

// Create creates a new attempt record
func (r *SQLiteAttemptRepository) Create(attempt *domain.Attempt) error {
	return r.db.Create(attempt).Error
}

// Update updates an existing attempt record
func (r *SQLiteAttemptRepository) Update(attempt *domain.Attempt) error {
	return r.db.Save(attempt).Error
}

// FindByID finds an attempt by ID
func (r *SQLiteAttemptRepository) FindByID(id string) (*domain.Attempt, error) {
	var attempt domain.Attempt
	err := r.db.First(&attempt, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAttemptNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// FindRecent returns the latest attempts, newest first; limit <= 0 returns all
func (r *SQLiteAttemptRepository) FindRecent(limit int) ([]*domain.Attempt, error) {
	var attempts []*domain.Attempt
	query := r.db.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&attempts).Error
	return attempts, err
}

// FindByState finds attempts in the given state
func (r *SQLiteAttemptRepository) FindByState(state domain.AttemptState) ([]*domain.Attempt, error) {
	var attempts []*domain.Attempt
	err := r.db.Where("state = ?", state).Order("created_at DESC").Find(&attempts).Error
	return attempts, err
}

// GetStats returns attempt statistics
func (r *SQLiteAttemptRepository) GetStats() (*domain.AttemptStats, error) {
	stats := &domain.AttemptStats{}

	if err := r.db.Model(&domain.Attempt{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	stateCounts := []struct {
		State domain.AttemptState
		Count int64
	}{}

	if err := r.db.Model(&domain.Attempt{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&stateCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range stateCounts {
		switch sc.State {
		case domain.StateCompleted:
			stats.Completed = sc.Count
		case domain.StateFailed:
			stats.Failed = sc.Count
		case domain.StateRejected:
			stats.Rejected = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteAttemptRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
