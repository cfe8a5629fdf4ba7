package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestScan(t *testing.T) {
	t.Run("orders by version and skips other files", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/002_add_index.sql":   {Data: []byte("CREATE INDEX i ON t(a);")},
			"m/001_initial.sql":     {Data: []byte("CREATE TABLE t (a TEXT);")},
			"m/README.md":           {Data: []byte("notes")},
			"m/nested/003_skip.sql": {Data: []byte("SELECT 1;")},
		}
		got, err := Scan(fsys, "m")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got) != 2 || got[0].Version != 1 || got[1].Version != 2 {
			t.Fatalf("unexpected migrations %+v", got)
		}
		if got[1].Description != "add index" || got[0].Checksum == "" {
			t.Fatalf("unexpected metadata %+v", got[1])
		}
	})

	t.Run("bad file name", func(t *testing.T) {
		fsys := fstest.MapFS{"m/initial.sql": {Data: []byte("SELECT 1;")}}
		if _, err := Scan(fsys, "m"); !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
		}
	})

	t.Run("duplicate version", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/001_a.sql":  {Data: []byte("SELECT 1;")},
			"m/0001_b.sql": {Data: []byte("SELECT 1;")},
		}
		if _, err := Scan(fsys, "m"); !errors.Is(err, ErrDuplicateVersion) {
			t.Fatalf("expected ErrDuplicateVersion, got %v", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		fsys := fstest.MapFS{"m/001_a.sql": {Data: []byte("  \n")}}
		if _, err := Scan(fsys, "m"); !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
		}
	})
}

func TestSplitStatements(t *testing.T) {
	sql := `-- leading comment
CREATE TABLE a (x TEXT);

-- second
CREATE TABLE b (y TEXT);
-- trailing only`
	got := splitStatements(sql)
	if len(got) != 2 || got[0] != "CREATE TABLE a (x TEXT)" || got[1] != "CREATE TABLE b (y TEXT)" {
		t.Fatalf("unexpected statements %q", got)
	}
}
