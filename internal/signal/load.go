package signal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a table from a JSON or YAML file, chosen by extension. The file
// holds a list of entries. A missing file yields an error wrapping
// os.ErrNotExist so callers can fall back to Empty.
func Load(name, path string) (*Table, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read %s table: %w", name, err)
	}

	entries, err := decode(path, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s table %s: %w", name, path, err)
	}
	return NewTable(name, entries)
}

func decode(path string, data []byte) ([]Entry, error) {
	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
	case ".json", "":
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
	return entries, nil
}
