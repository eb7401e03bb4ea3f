package database

import (
	"database/sql"
	"os"
	"testing"

	"github.com/bidsify/bidsify/internal/config"
)

func setupTestDB(t *testing.T) *Context {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv(config.EnvDataDir, tmp)

	ctx, err := CreateDatabase("")
	if err != nil {
		t.Fatalf("CreateDatabase returned error: %v", err)
	}

	t.Cleanup(func() {
		if err := CloseDatabase(ctx); err != nil {
			t.Fatalf("CloseDatabase error: %v", err)
		}
	})

	return ctx
}

func TestDatabaseCreationAndMigration(t *testing.T) {
	ctx := setupTestDB(t)

	dbPath := config.GetDBPath()
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected database file to exist at %s: %v", dbPath, err)
	}

	for _, table := range []string{"source_files", "schema_migrations"} {
		if !tableExists(t, ctx.DB, table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}

func TestCreateDatabaseIsRepeatable(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(config.EnvDataDir, tmp)

	first, err := CreateDatabase("")
	if err != nil {
		t.Fatalf("first CreateDatabase returned error: %v", err)
	}
	if err := CloseDatabase(first); err != nil {
		t.Fatalf("CloseDatabase error: %v", err)
	}

	second, err := CreateDatabase("")
	if err != nil {
		t.Fatalf("second CreateDatabase returned error: %v", err)
	}
	if err := CloseDatabase(second); err != nil {
		t.Fatalf("CloseDatabase error: %v", err)
	}
}

func TestClearDatabaseRemovesAllRows(t *testing.T) {
	ctx := setupTestDB(t)

	insertSourceFile(t, ctx.DB, "0000001", "./study/001/T1", "001")
	insertSourceFile(t, ctx.DB, "0000002", "./study/001/rest.PAR", "001")
	assertCount(t, ctx.DB, "source_files", 2)

	if err := ClearDatabase(ctx); err != nil {
		t.Fatalf("ClearDatabase returned error: %v", err)
	}

	assertCount(t, ctx.DB, "source_files", 0)
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		t.Fatalf("tableExists query failed for %s: %v", table, err)
	}
	return true
}

func insertSourceFile(t *testing.T, db *sql.DB, fileID, relPath, sub string) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO source_files(file_id, rel_path, sub_id) VALUES(?, ?, ?)`, fileID, relPath, sub); err != nil {
		t.Fatalf("insertSourceFile failed: %v", err)
	}
}

func assertCount(t *testing.T, db *sql.DB, table string, expected int) {
	t.Helper()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		t.Fatalf("count query failed for %s: %v", table, err)
	}
	if count != expected {
		t.Fatalf("expected %s to have %d rows, got %d", table, expected, count)
	}
}
