// Package domain defines the persistence model for the tenant directory.
// Tenants are mapped with GORM and are the only stored entity of the relay:
// rows are created and maintained by an external admin process, and this
// service reads them once per incoming webhook.
package domain

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Tenant is a customer account in the directory. It is looked up by the
// Bitrix24 member id carried in the webhook's auth payload and owns the
// outbound inbound-webhook base URL used for REST calls back to the portal.
//
// Fields:
//   - ID: numeric primary key.
//   - Name: display name for logs and admin tooling.
//   - MemberID: Bitrix24 portal member id; unique lookup key.
//   - WebhookURL: absolute HTTP(S) base URL of the tenant's inbound webhook
//     (e.g. https://example.bitrix24.ru/rest/1/abc123). May be empty when the
//     tenant has not finished onboarding.
//   - Enabled: soft switch; disabled tenants are skipped without remote calls.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Tenant struct {
	ID         uint           `json:"id"          gorm:"primaryKey"`
	Name       string         `json:"name"        gorm:"type:varchar(255);not null"`
	MemberID   string         `json:"member_id"   gorm:"type:varchar(64);not null;uniqueIndex:ux_tenants_member_id"`
	WebhookURL string         `json:"webhook_url" gorm:"type:varchar(512)"`
	Enabled    bool           `json:"enabled"     gorm:"not null;default:true"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Tenant.
func (Tenant) TableName() string { return "tenants" }

// HasWebhookURL reports whether the tenant carries a usable webhook base URL.
// Only scheme presence is checked here; full URL validation is left to the
// admin process that writes the row.
func (t *Tenant) HasWebhookURL() bool {
	u := strings.TrimSpace(t.WebhookURL)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
