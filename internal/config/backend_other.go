//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// xdgPath resolves elem under the directory named by env, falling back to
// fallback below the home directory.
func xdgPath(env, fallback string, elem ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, fallback)
	}
	return filepath.Join(append([]string{dir}, elem...)...)
}

func defaultDataDir() string {
	return xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"), "paperllm")
}

func configFilePath() string {
	return xdgPath("XDG_CONFIG_HOME", ".config", "paperllm", "config.json")
}

func tokenHint() string {
	return " or secrets file " + secretsFilePath() + ` ({"paperllm":{"paperless_token":"..."}})`
}

// fileBackend keeps config as one JSON object keyed by dotted key names.
// Values keep their JSON type, so hand-edited files may use "4" or 4.
type fileBackend struct {
	path   string
	values map[string]json.RawMessage
}

func newPlatformBackend() ConfigBackend {
	return newFileBackend(configFilePath())
}

// newFileBackend reads path. A missing file is an empty config; an unreadable
// or invalid one is reported and treated as empty.
func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: make(map[string]json.RawMessage)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
	default:
		if err := json.Unmarshal(data, &b.values); err != nil {
			slog.Warn("config file is not a JSON object, using defaults", "path", path, "error", err)
			b.values = make(map[string]json.RawMessage)
		}
	}
	return b
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	raw, ok := b.values[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw), true, nil
	}
	return s, true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	raw, ok := b.values[key]
	if !ok {
		return 0, false, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, true, fmt.Errorf("%s: not a number: %s", key, raw)
	}
	i, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, true, fmt.Errorf("%s: not an integer: %w", key, err)
	}
	return i, true, nil
}

func (b *fileBackend) GetBool(key string) (bool, bool, error) {
	raw, ok := b.values[key]
	if !ok {
		return false, false, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, true, fmt.Errorf("%s: %w", key, err)
	}
	switch x := v.(type) {
	case bool:
		return x, true, nil
	case string:
		bv, err := strconv.ParseBool(x)
		if err != nil {
			return false, true, fmt.Errorf("%s: not a bool: %w", key, err)
		}
		return bv, true, nil
	default:
		return false, true, fmt.Errorf("%s: not a bool: %s", key, raw)
	}
}

func (b *fileBackend) SetString(key, val string) error { return b.set(key, val) }

func (b *fileBackend) SetInt(key string, val int) error { return b.set(key, val) }

func (b *fileBackend) SetBool(key string, val bool) error { return b.set(key, val) }

func (b *fileBackend) Delete(key string) error {
	delete(b.values, key)
	return b.save()
}

func (b *fileBackend) set(key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	b.values[key] = raw
	return b.save()
}

// save replaces the file atomically so a crash never leaves half a config.
func (b *fileBackend) save() error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return os.Rename(tmp.Name(), b.path)
}
