// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package replay resolves spec §8's named end-to-end scenarios (S1-S6) to
// internal/bench builders, for the CLI's -replay flag -- the only way to
// exercise the engine without a real dynamic binary translator driving it.
package replay

import (
	"fmt"

	"github.com/herbgrind/shadowvm/internal/bench"
	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/engine"
	"github.com/herbgrind/shadowvm/internal/hglog"
)

var scenarios = map[string]func() bench.Scenario{
	"S1": bench.S1,
	"S2": bench.S2,
	"S3": bench.S3,
	"S4": bench.S4,
	"S5": bench.S5,
	"S6": bench.S6,
}

// Names returns every recognised scenario name, for usage/help text.
func Names() []string {
	return []string{"S1", "S2", "S3", "S4", "S5", "S6"}
}

// Run resolves name to its scenario builder, replays it against a fresh
// Engine built from cfg and tracer, and returns the Engine for the caller
// to report on. An unknown name is returned as an error rather than
// silently running nothing.
func Run(cfg config.Config, name string, tracer *hglog.Tracer) (*engine.Engine, error) {
	build, ok := scenarios[name]
	if !ok {
		return nil, fmt.Errorf("replay: unknown scenario %q (want one of %v)", name, Names())
	}
	return bench.RunTraced(cfg, build(), tracer), nil
}
