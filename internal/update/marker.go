package update

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadMarker returns the persisted identifier. A missing file means no
// local version and yields "".
func ReadMarker(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read version marker: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteMarker overwrites the marker file with id
func WriteMarker(path, id string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write version marker: %w", err)
	}
	return nil
}
