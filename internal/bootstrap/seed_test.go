package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsurePersonaFileSeedsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.md")

	seeded, err := EnsurePersonaFile(path)
	if err != nil {
		t.Fatalf("EnsurePersonaFile: %v", err)
	}
	if !seeded {
		t.Fatal("expected the template to be written")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read seeded file: %v", err)
	}
	if !strings.Contains(string(raw), "исполнительный ассистент") {
		t.Errorf("template content unexpected:\n%s", raw)
	}

	// Second call must not touch the owner's file.
	if err := os.WriteFile(path, []byte("custom"), 0o644); err != nil {
		t.Fatal(err)
	}
	seeded, err = EnsurePersonaFile(path)
	if err != nil {
		t.Fatalf("EnsurePersonaFile rerun: %v", err)
	}
	if seeded {
		t.Error("rerun claimed to seed over an existing file")
	}
	raw, _ = os.ReadFile(path)
	if string(raw) != "custom" {
		t.Errorf("owner edit was overwritten: %q", raw)
	}
}

func TestEnsurePersonaFileEmptyPath(t *testing.T) {
	seeded, err := EnsurePersonaFile("")
	if err != nil || seeded {
		t.Errorf("empty path: seeded=%v err=%v", seeded, err)
	}
}
