package scenario

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
)

// FilePattern matches scenario files below a directory
const FilePattern = "**/*.{yaml,yml,toml}"

// Parse decodes and validates a script. format is "yaml", "yml" or "toml".
func Parse(data []byte, format string) (Script, error) {
	s, err := decode(data, format)
	if err != nil {
		return Script{}, err
	}
	if err := s.Validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}

func decode(data []byte, format string) (Script, error) {
	var s Script
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Script{}, fmt.Errorf("%w: yaml: %v", ipc.ErrInvalidArgument, err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &s); err != nil {
			return Script{}, fmt.Errorf("%w: toml: %v", ipc.ErrInvalidArgument, err)
		}
	default:
		return Script{}, fmt.Errorf("%w: unsupported scenario format %q", ipc.ErrInvalidArgument, format)
	}
	return s, nil
}

// LoadFile reads one script, choosing the decoder by extension. A script
// without a name takes the file's base name.
func LoadFile(fsys fs.FS, name string) (Script, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return Script{}, fmt.Errorf("read scenario %s: %w", name, err)
	}
	ext := path.Ext(name)
	s, err := decode(data, ext)
	if err == nil {
		if s.Name == "" {
			s.Name = strings.TrimSuffix(path.Base(name), ext)
		}
		err = s.Validate()
	}
	if err != nil {
		return Script{}, fmt.Errorf("scenario %s: %w", name, err)
	}
	return s, nil
}

// LoadDir reads every script matching FilePattern below dir. A missing
// directory yields no scripts.
func LoadDir(dir string) ([]Script, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, FilePattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", filepath.Join(dir, FilePattern), err)
	}

	scripts := make([]Script, 0, len(matches))
	for _, m := range matches {
		s, err := LoadFile(fsys, m)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}
