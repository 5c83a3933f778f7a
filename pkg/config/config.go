// Package config loads sink settings from a YAML or JSON file.
//
//	log:
//	  path: /var/log/app
//	  file_line: true
//	  max_size: 100
//	  buff_secs: 5
//	  category: false
//	  immediately_flush: true
//	  console: false
//	dump:
//	  path: /var/log/app/dumps
//	rules:
//	  "socket.*.debug": false
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/logsink/pkg/sink"
)

// Format is a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Defaults applied before the file is read.
const (
	DefaultMaxSizeMB        = 100
	DefaultBufferSeconds    = 5
	DefaultImmediatelyFlush = true
)

// Rule keys contain dots, so nested keys are joined with a delimiter that
// cannot appear in them.
const delim = "::"

var (
	ErrEmptyPath         = errors.New("config: empty path")
	ErrUnsupportedFormat = errors.New("config: unsupported format")
)

// File is the parsed configuration.
type File struct {
	Log   Log             `koanf:"log"`
	Dump  Dump            `koanf:"dump"`
	Rules map[string]bool `koanf:"rules"`
}

// Log holds the log section.
type Log struct {
	Path             string        `koanf:"path"`
	CategoryPath     string        `koanf:"category_path"` // Defaults to Path
	FileLine         bool          `koanf:"file_line"`
	RichText         bool          `koanf:"rich_text"` // Same as file_line
	MaxSize          int           `koanf:"max_size"`  // MB
	BuffSecs         int           `koanf:"buff_secs"`
	Category         bool          `koanf:"category"`
	ImmediatelyFlush bool          `koanf:"immediately_flush"`
	Console          bool          `koanf:"console"`
	MaxFiles         int           `koanf:"max_files"`
	MaxAge           time.Duration `koanf:"max_age"`
	Diagnostics      string        `koanf:"diagnostics"`
}

// Dump holds the dump section.
type Dump struct {
	Path string `koanf:"path"`
}

// Default returns the settings used for keys the file leaves out.
func Default() *File {
	return &File{
		Log: Log{
			MaxSize:          DefaultMaxSizeMB,
			BuffSecs:         DefaultBufferSeconds,
			ImmediatelyFlush: DefaultImmediatelyFlush,
		},
		Rules: map[string]bool{},
	}
}

// Load reads path, picking the parser from its extension.
func Load(path string) (*File, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - the path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	return f, nil
}

// Parse decodes data over the defaults. Empty data yields the defaults.
func Parse(data []byte, format Format) (*File, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", format)
	}

	k := koanf.New(delim)
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	f := Default()
	if err := k.UnmarshalWithConf("", f, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if f.Rules == nil {
		f.Rules = map[string]bool{}
	}
	return f, nil
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedFormat, "extension %q", ext)
	}
}

// Options converts the file into sink options. Validation happens in
// sink.New.
func (f *File) Options() []sink.Option {
	categoryPath := f.Log.CategoryPath
	if categoryPath == "" {
		categoryPath = f.Log.Path
	}

	opts := []sink.Option{
		sink.WithMaxSizeMB(f.Log.MaxSize),
		sink.WithBufferSeconds(f.Log.BuffSecs),
		sink.WithFlushImmediately(f.Log.ImmediatelyFlush),
		sink.WithCategoryMode(f.Log.Category),
		sink.WithFileLine(f.Log.FileLine || f.Log.RichText),
		sink.WithConsole(f.Log.Console),
		sink.WithMaxFiles(f.Log.MaxFiles),
		sink.WithMaxAge(f.Log.MaxAge),
	}
	if f.Log.Path != "" {
		opts = append(opts, sink.WithLogDir(f.Log.Path))
	}
	if categoryPath != "" {
		opts = append(opts, sink.WithCategoryDestination(categoryPath))
	}
	if f.Dump.Path != "" {
		opts = append(opts, sink.WithDumpPath(f.Dump.Path))
	}
	if f.Log.Diagnostics != "" {
		opts = append(opts, sink.WithDiagnosticsFile(f.Log.Diagnostics))
	}
	return opts
}
