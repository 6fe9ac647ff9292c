package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestMigrationFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755); err != nil {
		t.Fatal(err)
	}
	files, err := migrationFiles(dir)
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "001_a.sql" || filepath.Base(files[1]) != "002_b.sql" {
		t.Fatalf("unexpected files %v", files)
	}
	if _, err := migrationFiles(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("missing dir must error")
	}
}

func TestInt64Ptr(t *testing.T) {
	if v := int64Ptr(sql.NullInt64{}); v != nil {
		t.Fatalf("NULL -> nil expected")
	}
	if v := int64Ptr(sql.NullInt64{Int64: 0, Valid: true}); v == nil || *v != 0 {
		t.Fatalf("zero must stay a value, got %v", v)
	}
}

func TestNullIfEmpty(t *testing.T) {
	if v := nullIfEmpty(""); v != nil {
		t.Fatalf("empty -> nil expected")
	}
	if v := nullIfEmpty("x"); v != "x" {
		t.Fatalf("non-empty -> value expected")
	}
}
