// Package repo implements the data persistence layer for the tenant
// directory, backed by GORM. This file provides the read-side repository
// for the Tenant model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only query
// composition.
//
// Error semantics:
//   - When a tenant is not found, GetTenantByMemberID returns
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (connectivity issues etc.) the raw gorm error is
//     propagated, never swallowed.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-b24-relay/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetTenantByMemberID fetches the single tenant whose stored Bitrix24 member
// id matches exactly. If no row matches, it returns ErrNotFound. On other DB
// errors, the raw error is returned. The lookup has no side effects.
func GetTenantByMemberID(ctx context.Context, db *gorm.DB, memberID string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := db.WithContext(ctx).
		Where("member_id = ?", memberID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CountTenants returns the total number of directory rows. Used by the
// startup log line and health tooling; not part of the webhook path.
func CountTenants(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Count(&total).Error
	return total, err
}
