// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package config defines the frozen configuration record the embedding tool
// builds once (from CLI flags, optionally overlaid with a TOML file) and
// hands to the engine. Modelled on cmd/gprobe/config.go's
// toml-defaults-then-cli-overrides shape, but the result here is genuinely
// treated as immutable once built: spec §6 treats flags as "a static
// configuration record".
package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"

	"github.com/naoina/toml"
)

// tomlSettings keeps TOML keys identical to the Go struct field names, the
// same convention cmd/gprobe/config.go uses.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// Config is the frozen set of knobs spec §6 lists. Start from Default,
// overlay a TOML file with LoadTOML and the CLI overrides, check the result
// with Validate, and treat it as read-only from then on.
type Config struct {
	// PrecisionBits is the MPFR-equivalent mantissa width every Real in the
	// process uses (default 1000).
	PrecisionBits uint

	// ErrorThresholdBits is the number of bits of disagreement at/above
	// which an operation's influence propagates to its result (§4.7 step 6).
	ErrorThresholdBits float64

	// ReportExprs includes symbolic expressions in the report and prunes
	// sub-expressions of larger reported ones (§4.10).
	ReportExprs bool

	// HumanReadable selects the paragraph report format over S-expressions.
	HumanReadable bool

	// NoInfluences disables influence-set tracking; marks become pure error
	// reports (§6).
	NoInfluences bool

	// NoExprs disables symbolic expression tracking entirely.
	NoExprs bool

	// MaxExprBlockDepth bounds the depth walked when pruning sub-expressions
	// from the report and from influence filtering (§4.10).
	MaxExprBlockDepth int

	// PrintTypes, PrintValueMoves, PrintTempMoves, PrintMallocs are the
	// print-* diagnostic trace flags (§6); all route through internal/hglog.
	PrintTypes      bool
	PrintValueMoves bool
	PrintTempMoves  bool
	PrintMallocs    bool

	// ReportPath is the output file for the report; empty means stdout.
	ReportPath string
}

// Default returns the documented default configuration (§6's defaults).
func Default() Config {
	return Config{
		PrecisionBits:      1000,
		ErrorThresholdBits: 20,
		ReportExprs:        false,
		HumanReadable:      false,
		NoInfluences:       false,
		NoExprs:            false,
		MaxExprBlockDepth:  4,
	}
}

// LoadTOML overlays cfg with the contents of the TOML file at path. Missing
// keys in the file leave the corresponding cfg field untouched. A failure to
// open or parse the file is returned verbatim for the caller to report;
// config loading has no silent-recovery story, unlike runtime shadow state.
func LoadTOML(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations that can never produce a well-formed run.
func (c Config) Validate() error {
	if c.PrecisionBits < 53 {
		return fmt.Errorf("config: precision %d is narrower than a double's 53 bits", c.PrecisionBits)
	}
	if c.ErrorThresholdBits < 0 {
		return fmt.Errorf("config: error-threshold must be non-negative, got %v", c.ErrorThresholdBits)
	}
	if c.MaxExprBlockDepth < 0 {
		return fmt.Errorf("config: max-expr-block-depth must be non-negative, got %d", c.MaxExprBlockDepth)
	}
	return nil
}
