// Package mysql holds the license/quota store. Licenses are provisioned
// out of band; the gateway only checks and counts sends.
package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dmendiola/wagate/internal/domain"
)

type LicenseStore struct {
	db *gorm.DB
}

func NewLicenseStore(dsn string) (*LicenseStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening mysql: %w", err)
	}

	if err := db.AutoMigrate(&domain.License{}); err != nil {
		return nil, fmt.Errorf("migrating licenses: %w", err)
	}

	return &LicenseStore{db: db}, nil
}

// Allow returns ErrQuotaExceeded when the uid's monthly quota is spent. A
// uid with no license row is rejected outright.
func (s *LicenseStore) Allow(ctx context.Context, uid domain.UID) error {
	var lic domain.License
	err := s.db.WithContext(ctx).Where("uid = ?", string(uid)).First(&lic).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: no license for uid", domain.ErrAuth)
	}
	if err != nil {
		return fmt.Errorf("querying license: %w", err)
	}

	if lic.MonthlyQuota > 0 && lic.SentCount >= lic.MonthlyQuota {
		return domain.ErrQuotaExceeded
	}
	return nil
}

func (s *LicenseStore) RecordSend(ctx context.Context, uid domain.UID) error {
	res := s.db.WithContext(ctx).
		Model(&domain.License{}).
		Where("uid = ?", string(uid)).
		UpdateColumn("sent_count", gorm.Expr("sent_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("recording send: %w", res.Error)
	}
	return nil
}
