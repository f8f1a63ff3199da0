// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format identifies the syntax of a document handed to Decode.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ErrUnsupportedFormat is returned for documents whose syntax Decode cannot read.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// FormatForPath picks a Format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Result holds a decoded document and the unified CUE value it came from.
type Result[T any] struct {
	Value   *T
	Unified cue.Value
}

// Decode reads data in the given format, unifies it with the definition at
// schemaPath inside schema, validates, and decodes the outcome into T.
func Decode[T any](schema string, schemaPath string, format Format, data []byte, opts ...Option) (*Result[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(schema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile schema: %w", schemaValue.Err())
	}
	root := schemaValue.LookupPath(cue.ParsePath(schemaPath))
	if root.Err() != nil {
		return nil, fmt.Errorf("internal error: schema definition %s not found: %w", schemaPath, root.Err())
	}

	userValue, err := build(ctx, format, data, o.filename)
	if err != nil {
		return nil, err
	}

	unified := root.Unify(userValue)
	if err := unified.Validate(cue.Concrete(o.concrete)); err != nil {
		return nil, FormatError(err, o.filename)
	}

	var out T
	if err := unified.Decode(&out); err != nil {
		return nil, FormatError(err, o.filename)
	}
	return &Result[T]{Value: &out, Unified: unified}, nil
}

func build(ctx *cue.Context, format Format, data []byte, filename string) (cue.Value, error) {
	switch format {
	case FormatCUE:
		v := ctx.CompileBytes(data, cue.Filename(filename))
		if v.Err() != nil {
			return cue.Value{}, FormatError(v.Err(), filename)
		}
		return v, nil
	case FormatYAML:
		file, err := cueyaml.Extract(filename, data)
		if err != nil {
			return cue.Value{}, FormatError(err, filename)
		}
		v := ctx.BuildFile(file)
		if v.Err() != nil {
			return cue.Value{}, FormatError(v.Err(), filename)
		}
		return v, nil
	case FormatTOML:
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				row, col := derr.Position()
				return cue.Value{}, fmt.Errorf("%s:%d:%d: %s", filename, row, col, derr.Error())
			}
			return cue.Value{}, fmt.Errorf("%s: %w", filename, err)
		}
		v := ctx.Encode(doc)
		if v.Err() != nil {
			return cue.Value{}, FormatError(v.Err(), filename)
		}
		return v, nil
	default:
		return cue.Value{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
