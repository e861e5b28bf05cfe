package migrations

import (
	"strings"
	"testing"
)

func TestNamesSortedAndEmbedded(t *testing.T) {
	names, err := Names()
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("migrations out of order: %v", names)
		}
	}

	body, err := migrationFiles.ReadFile(names[0])
	if err != nil {
		t.Fatalf("read %s: %v", names[0], err)
	}
	if !strings.Contains(string(body), "EXCLUDE USING gist") {
		t.Fatal("initial migration must carry the overlap exclusion constraint")
	}
}
