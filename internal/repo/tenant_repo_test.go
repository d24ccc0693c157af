package repo

import (
	"context"
	"errors"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-b24-relay/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:tenant_repo?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DELETE FROM tenants")
	})
	return db
}

func seedTenant(t *testing.T, db *gorm.DB, tn domain.Tenant) {
	t.Helper()
	if err := db.Create(&tn).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
}

func TestGetTenantByMemberID_Found(t *testing.T) {
	db := newTestDB(t)
	seedTenant(t, db, domain.Tenant{
		Name:       "Acme GmbH",
		MemberID:   "mem1",
		WebhookURL: "https://acme.bitrix24.de/rest/1/secret",
		Enabled:    true,
	})

	got, err := GetTenantByMemberID(context.Background(), db, "mem1")
	if err != nil {
		t.Fatalf("GetTenantByMemberID returned error: %v", err)
	}
	if got.Name != "Acme GmbH" || got.MemberID != "mem1" || !got.Enabled {
		t.Fatalf("unexpected tenant: %+v", got)
	}
}

func TestGetTenantByMemberID_ExactMatchOnly(t *testing.T) {
	db := newTestDB(t)
	seedTenant(t, db, domain.Tenant{Name: "A", MemberID: "mem1", Enabled: true})

	if _, err := GetTenantByMemberID(context.Background(), db, "mem"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("prefix lookup should miss, got err=%v", err)
	}
	if _, err := GetTenantByMemberID(context.Background(), db, "mem12"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("superstring lookup should miss, got err=%v", err)
	}
}

func TestGetTenantByMemberID_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := GetTenantByMemberID(context.Background(), db, "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("ErrNotFound must alias gorm.ErrRecordNotFound")
	}
}

func TestGetTenantByMemberID_SkipsSoftDeleted(t *testing.T) {
	db := newTestDB(t)
	seedTenant(t, db, domain.Tenant{Name: "Gone", MemberID: "mem-del", Enabled: true})
	if err := db.Where("member_id = ?", "mem-del").Delete(&domain.Tenant{}).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if _, err := GetTenantByMemberID(context.Background(), db, "mem-del"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("soft-deleted tenant should be invisible, got err=%v", err)
	}
}

func TestCountTenants(t *testing.T) {
	db := newTestDB(t)
	seedTenant(t, db, domain.Tenant{Name: "A", MemberID: "m-a", Enabled: true})
	seedTenant(t, db, domain.Tenant{Name: "B", MemberID: "m-b", Enabled: false})

	total, err := CountTenants(context.Background(), db)
	if err != nil {
		t.Fatalf("CountTenants returned error: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d; want 2", total)
	}
}
