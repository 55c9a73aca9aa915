package storage

import (
	"strings"
	"testing"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func dryRunConn(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/polytrak",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry-run connection: %v", err)
	}
	return conn
}

func TestUpsertStatement(t *testing.T) {
	row := &StageCacheEntry{
		Address:   "0xabc",
		Stage:     "full",
		Data:      []byte(`{"ok":true}`),
		UpdatedTS: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}

	stmt := upsert(dryRunConn(t), row).Statement
	sql := stmt.SQL.String()

	for _, want := range []string{"INSERT INTO `stage_cache`", "ON DUPLICATE KEY UPDATE", "`updated_ts`", "`data`"} {
		if !strings.Contains(sql, want) {
			t.Errorf("upsert SQL missing %q: %s", want, sql)
		}
	}
	if len(stmt.Vars) != 4 {
		t.Errorf("expected 4 bound values, got %d", len(stmt.Vars))
	}
}

func TestStageCacheEntryTable(t *testing.T) {
	if got := (StageCacheEntry{}).TableName(); got != "stage_cache" {
		t.Errorf("table name: got %s", got)
	}
}
