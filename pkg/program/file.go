package program

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/smuseq/pkg/status"
)

// Format is a program file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", pkgerrors.Errorf("unsupported program file extension %q", filepath.Ext(path))
	}
}

// LoadFile reads and checks a program file.
func LoadFile(path string) (*Program, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read program file %s", path)
	}

	p, err := Decode(b, format)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load program file %s", path)
	}
	return p, nil
}

// Decode parses a program in the given format. Unknown fields are rejected
// and the result is checked with Program.Check.
func Decode(b []byte, format Format) (*Program, error) {
	p := &Program{}

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(p); err != nil {
			return nil, status.Wrap(status.CodeInvalidProgram, err, "failed to decode yaml program")
		}
	case FormatTOML:
		md, err := toml.Decode(string(b), p)
		if err != nil {
			return nil, status.Wrap(status.CodeInvalidProgram, err, "failed to decode toml program")
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, status.New(status.CodeInvalidProgram, "unknown fields in toml program: %v", undecoded)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p); err != nil {
			return nil, status.Wrap(status.CodeInvalidProgram, err, "failed to decode json program")
		}
	default:
		return nil, status.New(status.CodeInvalidProgram, "unknown program format %q", format)
	}

	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}
