package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"firestige.xyz/wirelab/pkg/schema"
)

// Format is a workspace serialization, chosen by file extension.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf returns the format implied by path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Ext(path))
}

// Load reads a workspace file. The format follows the extension.
func Load(path string) (*Workspace, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace %s: %w", path, err)
	}
	ws, err := Unmarshal(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workspace %s: %w", path, err)
	}
	return ws, nil
}

// Unmarshal decodes a workspace. JSON numbers are kept as json.Number so that
// 64-bit template values are not rounded through float64.
func Unmarshal(data []byte, format Format) (*Workspace, error) {
	ws := &Workspace{}
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(ws); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, ws); err != nil {
			return nil, err
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), ws); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, format)
	}
	ws.normalize()
	return ws, nil
}

// Marshal encodes ws in the given format.
func Marshal(ws *Workspace, format Format) ([]byte, error) {
	ws.normalize()
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(ws, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(plain(ws)); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(plain(ws)); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, format)
}

// Save writes ws to path atomically: the data goes to a temporary file in the
// same directory which then replaces path.
func Save(path string, ws *Workspace) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Marshal(ws, format)
	if err != nil {
		return fmt.Errorf("failed to encode workspace: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write workspace: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync workspace: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close workspace: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// plain returns a copy of ws whose template values no longer carry
// json.Number, which YAML and TOML would otherwise write as strings.
func plain(ws *Workspace) *Workspace {
	out := *ws
	out.Templates = make([]schema.Template, len(ws.Templates))
	for i, t := range ws.Templates {
		t.Values = plainMap(t.Values)
		out.Templates[i] = t
	}
	return &out
}

func plainMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if strings.ContainsAny(x.String(), ".eE") {
			if f, err := x.Float64(); err == nil {
				return f
			}
		}
		// Integers beyond int64 stay textual; the codec parses them exactly.
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainValue(e)
		}
		return out
	case map[string]any:
		return plainMap(x)
	}
	return v
}
