// Package bootstrap seeds editable starter files on first run.
package bootstrap

import (
	"embed"
	"fmt"
	"os"
)

//go:embed templates/persona.md
var templateFS embed.FS

// EnsurePersonaFile writes the starter persona template to path unless a
// file is already there. The file is the owner's to edit; it is never
// overwritten. Reports whether the template was written.
func EnsurePersonaFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}

	// O_EXCL keeps a concurrent daemon start from clobbering an edit.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	content, err := templateFS.ReadFile("templates/persona.md")
	if err != nil {
		os.Remove(path)
		return false, fmt.Errorf("read persona template: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		return false, fmt.Errorf("write persona template: %w", err)
	}
	return true, nil
}
