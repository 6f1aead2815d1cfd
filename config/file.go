package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// ReadFile reads a json5 file into T. When a sibling "<name>.local.<ext>"
// exists, its non-zero fields override the base file. Either file alone is
// enough; os.ErrNotExist is returned only when both are missing.
func ReadFile[T any](name string) (T, error) {
	var out T
	found := false

	base, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(base) > 0 {
		if err := json5.Unmarshal(base, &out); err != nil {
			return out, fmt.Errorf("config: parse %s: %w", name, err)
		}
		found = true
	}

	localName := localPath(name)
	local, err := os.ReadFile(localName)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(local) > 0 {
		var override T
		if err := json5.Unmarshal(local, &override); err != nil {
			return out, fmt.Errorf("config: parse %s: %w", localName, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, fmt.Errorf("config: merge %s: %w", localName, err)
		}
		slog.Info("merged local overrides", "file", localName)
		found = true
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

// localPath turns "dir/creds.json5" into "dir/creds.local.json5".
func localPath(name string) string {
	dir := filepath.Dir(name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(filepath.Base(name), ext)
	return filepath.Join(dir, stem+".local"+ext)
}
