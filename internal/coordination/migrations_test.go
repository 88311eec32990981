package coordination

import (
	"strings"
	"testing"
)

func TestLoadMigrationFiles(t *testing.T) {
	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	if files[0].version != "0001" {
		t.Fatalf("unexpected first version: %s", files[0].version)
	}

	joined := strings.Join(files[0].statements, "\n")
	if !strings.Contains(joined, "coordination_intents") {
		t.Fatal("initial migration must create coordination_intents")
	}
	if !strings.Contains(joined, "coordination_acceptances") {
		t.Fatal("initial migration must create coordination_acceptances")
	}

	for i := 1; i < len(files); i++ {
		if files[i].version < files[i-1].version {
			t.Fatalf("migrations out of order: %s before %s", files[i-1].version, files[i].version)
		}
	}
}

func TestSplitSQLStatements(t *testing.T) {
	statements := splitSQLStatements("CREATE TABLE a (id INT);\n\nCREATE TABLE b (id INT);\n;")
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(statements))
	}
	if !strings.HasPrefix(statements[1], "CREATE TABLE b") {
		t.Fatalf("unexpected statement: %s", statements[1])
	}
}

func TestParseMigrationVersion(t *testing.T) {
	cases := map[string]string{
		"0001_coordination.sql": "0001",
		"0002_indexes.sql":      "0002",
		"standalone.sql":        "standalone",
	}
	for name, want := range cases {
		if got := parseMigrationVersion(name); got != want {
			t.Fatalf("%s: expected %s, got %s", name, want, got)
		}
	}
}
