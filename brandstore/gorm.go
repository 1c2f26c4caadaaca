package brandstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	vr "github.com/ineyio/visionrouter"
)

// ProfileRow stores a user's brand profile as a JSON document.
type ProfileRow struct {
	UserID string `gorm:"column:user_id;type:text;primaryKey"` // Owning user.

	Profile datatypes.JSON `gorm:"not null"` // Validated profile document.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (ProfileRow) TableName() string {
	return "brand_profiles"
}

// GormStore is a Store backed by any GORM dialect.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore wraps db. Call Migrate before first use.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the brand_profiles table.
func (s *GormStore) Migrate() error {
	if err := s.db.AutoMigrate(&ProfileRow{}); err != nil {
		return fmt.Errorf("visionrouter/brandstore: migrate: %w", err)
	}
	return nil
}

func (s *GormStore) Load(ctx context.Context, userID string) (*vr.BrandProfile, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	var row ProfileRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("visionrouter/brandstore: load: %w", err)
	}
	return decode(row.Profile)
}

func (s *GormStore) Save(ctx context.Context, userID string, p *vr.BrandProfile) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	data, err := encode(p)
	if err != nil {
		return err
	}
	row := ProfileRow{UserID: userID, Profile: datatypes.JSON(data)}
	errSave := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"profile", "updated_at"}),
	}).Create(&row).Error
	if errSave != nil {
		return fmt.Errorf("visionrouter/brandstore: save: %w", errSave)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&ProfileRow{}).Error; err != nil {
		return fmt.Errorf("visionrouter/brandstore: delete: %w", err)
	}
	return nil
}
