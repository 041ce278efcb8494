package locale

import (
	"os"
	"path/filepath"
	"testing"
)

// writeCatalog creates a minimal PO file at root/lang/LC_MESSAGES/rel.
func writeCatalog(t *testing.T, root, lang, rel string) string {
	t.Helper()
	path := filepath.Join(root, lang, MessagesDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("msgid \"\"\nmsgstr \"\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPairs(t *testing.T) {
	root := t.TempDir()
	writeCatalog(t, root, "en", "index.po")
	writeCatalog(t, root, "en", filepath.Join("reference", "api.po"))
	writeCatalog(t, root, "ru", "index.po")
	// Non-catalog files are ignored.
	writeCatalog(t, root, "en", "notes.txt")

	pairs, err := Pairs(root, "en", "ru")
	if err != nil {
		t.Fatalf("Pairs error: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2", len(pairs))
	}

	byRel := make(map[string]Pair)
	for _, p := range pairs {
		byRel[p.Rel] = p
	}

	index, ok := byRel["index.po"]
	if !ok {
		t.Fatalf("index.po missing from %v", pairs)
	}
	if index.TargetMissing {
		t.Fatal("ru/index.po exists, TargetMissing should be false")
	}
	if want := filepath.Join(root, "ru", MessagesDir, "index.po"); index.Target != want {
		t.Fatalf("Target = %q, want %q", index.Target, want)
	}

	api, ok := byRel["reference/api.po"]
	if !ok {
		t.Fatalf("nested catalog missing from %v", pairs)
	}
	if !api.TargetMissing {
		t.Fatal("ru counterpart of reference/api.po does not exist")
	}
}

func TestPairsMissingSourceTree(t *testing.T) {
	root := t.TempDir()
	writeCatalog(t, root, "ru", "index.po")

	if _, err := Pairs(root, "en", "ru"); err == nil {
		t.Fatal("missing source tree must be an error")
	}
}

func TestPairsEmptySourceTree(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "en", MessagesDir), 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := Pairs(root, "en", "ru"); err == nil {
		t.Fatal("source tree without catalogs must be an error")
	}
}
