package database

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

var dropTable = regexp.MustCompile(`(?i)DROP TABLE[^;]*;`)

// The events table is referenced by foreign keys from later migrations.
func TestDownMigrationsCascade(t *testing.T) {
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(downs) == 0 {
		t.Fatal("no down migrations embedded")
	}

	for _, name := range downs {
		data, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(name, "create_events") {
			continue
		}
		stmts := dropTable.FindAllString(string(data), -1)
		if len(stmts) == 0 {
			t.Fatalf("%s drops no table", name)
		}
		for _, stmt := range stmts {
			if !strings.Contains(strings.ToUpper(stmt), "CASCADE") {
				t.Errorf("%s: %q lacks CASCADE", name, stmt)
			}
		}
	}
}
