package filestore

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	jsonx "georemind/internal/shared/json"
)

// Codec names the on-disk encoding of a document.
type Codec string

const (
	CodecJSON Codec = "json"
	CodecYAML Codec = "yaml"
)

// CodecForPath picks YAML for .yaml/.yml files and JSON otherwise.
func CodecForPath(path string) Codec {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return CodecYAML
	default:
		return CodecJSON
	}
}

// Encode serializes v with a trailing newline.
func (c Codec) Encode(v any) ([]byte, error) {
	switch c {
	case CodecYAML:
		return yaml.Marshal(v)
	case CodecJSON, "":
		data, err := jsonx.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", c)
	}
}

// Decode parses data into v.
func (c Codec) Decode(data []byte, v any) error {
	switch c {
	case CodecYAML:
		return yaml.Unmarshal(data, v)
	case CodecJSON, "":
		return jsonx.Unmarshal(data, v)
	default:
		return fmt.Errorf("unknown codec %q", c)
	}
}

// EnsureDir creates the directory and all parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// EnsureParentDir creates the parent directory of filePath.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// AtomicWrite writes data to a sibling temp file, syncs it and renames it
// over filePath, so readers see either the old or the new document.
func AtomicWrite(filePath string, data []byte, perm os.FileMode) error {
	if err := EnsureParentDir(filePath); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(filePath), filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		cleanup()
		return err
	}
	return nil
}

// ReadFileOrEmpty reads a file, returning (nil, nil) if it doesn't exist.
func ReadFileOrEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// ResolvePath expands ~ and environment variables. An empty configured
// value falls back to defaultPath.
func ResolvePath(configured, defaultPath string) string {
	path := configured
	if path == "" {
		path = defaultPath
	}
	if path == "" {
		return path
	}

	if path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			switch {
			case len(path) == 1:
				path = home
			case path[1] == '/':
				path = filepath.Join(home, path[2:])
			default:
				path = filepath.Join(home, path[1:])
			}
		}
	}
	return os.ExpandEnv(path)
}
