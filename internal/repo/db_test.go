package repo

import (
	"path/filepath"
	"testing"

	"github.com/tbourn/go-b24-relay/internal/domain"
)

func TestOpenSQLite_CreatesAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	if !db.Migrator().HasTable(&domain.Tenant{}) {
		t.Fatalf("tenants table missing after migration")
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "nope", "relay.db")); err == nil {
		t.Fatalf("expected error for missing parent directory")
	}
}

func TestOpen_PrefersDSN(t *testing.T) {
	// An unreachable DSN must surface a connection error rather than fall
	// back to SQLite.
	if _, err := OpenPostgres("host=127.0.0.1 port=1 user=x dbname=x connect_timeout=1 sslmode=disable"); err == nil {
		t.Skip("unexpectedly connected; environment has a local postgres on port 1")
	}
}

func TestOpen_SQLiteFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.db")
	db, err := Open("", path)
	if err != nil {
		t.Fatalf("Open with empty DSN should use SQLite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
}
