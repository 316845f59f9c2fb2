// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Command herbgrind is the embedding tool's CLI entrypoint: it turns flags
// (optionally overlaid with a TOML file) into a frozen config.Config, and
// either drives a named replay scenario against internal/bench (there
// being no real dynamic binary translator in this tool to drive a live
// host program) or simply prints the resolved configuration. Mirrors
// probe-lang/cmd/probec/main.go's tiny single-command shape, but built on
// gopkg.in/urfave/cli.v1 the way cmd/gprobe's flag surface is, since a
// multi-flag embedding tool benefits from cli.v1's categories and help
// generation.
package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/herbgrind/shadowvm/cmd/herbgrind/internal/replay"
	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/hglog"
	"github.com/herbgrind/shadowvm/internal/shadow"
)

var (
	precisionFlag = cli.IntFlag{
		Name:  "precision",
		Usage: "MPFR-equivalent precision, in bits",
		Value: 1000,
	}
	errorThresholdFlag = cli.Float64Flag{
		Name:  "error-threshold",
		Usage: "bits of error at/above which influences propagate",
		Value: 20,
	}
	reportExprsFlag = cli.BoolFlag{
		Name:  "report-exprs",
		Usage: "include symbolic expressions in the report, pruning sub-expressions",
	}
	humanReadableFlag = cli.BoolFlag{
		Name:  "human-readable",
		Usage: "write a paragraph report instead of S-expressions",
	}
	noInfluencesFlag = cli.BoolFlag{
		Name:  "no-influences",
		Usage: "disable influence-set tracking",
	}
	noExprsFlag = cli.BoolFlag{
		Name:  "no-exprs",
		Usage: "disable symbolic expression tracking",
	}
	maxExprBlockDepthFlag = cli.IntFlag{
		Name:  "max-expr-block-depth",
		Usage: "depth bound for sub-expression pruning",
		Value: 4,
	}
	printTypesFlag      = cli.BoolFlag{Name: "print-types", Usage: "trace static type-tracker transitions"}
	printValueMovesFlag = cli.BoolFlag{Name: "print-value-moves", Usage: "trace executed ops, mark calls and report building (same trace as print-temp-moves)"}
	printTempMovesFlag  = cli.BoolFlag{Name: "print-temp-moves", Usage: "trace executed ops, mark calls and report building (same trace as print-value-moves)"}
	printMallocsFlag    = cli.BoolFlag{Name: "print-mallocs", Usage: "trace pool allocations"}

	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML file overlaying the defaults above",
	}
	reportFlag = cli.StringFlag{
		Name:  "report",
		Usage: "report output file (default: stdout)",
	}
	replayFlag = cli.StringFlag{
		Name:  "replay",
		Usage: fmt.Sprintf("run a named seed scenario against the bench harness instead of a live host (%v)", replay.Names()),
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "herbgrind"
	app.Usage = "floating-point shadow-execution accuracy diagnostics"
	app.Flags = []cli.Flag{
		precisionFlag, errorThresholdFlag, reportExprsFlag, humanReadableFlag,
		noInfluencesFlag, noExprsFlag, maxExprBlockDepthFlag,
		printTypesFlag, printValueMovesFlag, printTempMovesFlag, printMallocsFlag,
		configFlag, reportFlag, replayFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		hglog.Error("herbgrind: fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg := config.Default()
	if file := ctx.GlobalString(configFlag.Name); file != "" {
		if err := config.LoadTOML(&cfg, file); err != nil {
			return err
		}
	}
	applyFlags(ctx, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	tracer := hglog.NewTracer(cfg.PrintValueMoves || cfg.PrintTempMoves, hglog.Root)
	if cfg.PrintTypes || cfg.PrintValueMoves || cfg.PrintTempMoves {
		hglog.SetLevel(hglog.LevelDebug)
	}
	if cfg.PrintMallocs {
		if err := shadow.EnableMallocLog(0); err != nil {
			return err
		}
		defer shadow.DisableMallocLog()
	}

	scenario := ctx.GlobalString(replayFlag.Name)
	if scenario == "" {
		fmt.Fprintf(os.Stdout, "herbgrind: no -replay scenario given; resolved configuration:\n%+v\n", cfg)
		return nil
	}

	e, err := replay.Run(cfg, scenario, tracer)
	if err != nil {
		return err
	}
	for _, ev := range shadow.MallocEvents() {
		hglog.Info("malloc", "event", ev)
	}
	return e.End(ctx.GlobalString(reportFlag.Name))
}

func applyFlags(ctx *cli.Context, cfg *config.Config) {
	if ctx.GlobalIsSet(precisionFlag.Name) {
		cfg.PrecisionBits = uint(ctx.GlobalInt(precisionFlag.Name))
	}
	if ctx.GlobalIsSet(errorThresholdFlag.Name) {
		cfg.ErrorThresholdBits = ctx.GlobalFloat64(errorThresholdFlag.Name)
	}
	if ctx.GlobalIsSet(reportExprsFlag.Name) {
		cfg.ReportExprs = ctx.GlobalBool(reportExprsFlag.Name)
	}
	if ctx.GlobalIsSet(humanReadableFlag.Name) {
		cfg.HumanReadable = ctx.GlobalBool(humanReadableFlag.Name)
	}
	if ctx.GlobalIsSet(noInfluencesFlag.Name) {
		cfg.NoInfluences = ctx.GlobalBool(noInfluencesFlag.Name)
	}
	if ctx.GlobalIsSet(noExprsFlag.Name) {
		cfg.NoExprs = ctx.GlobalBool(noExprsFlag.Name)
	}
	if ctx.GlobalIsSet(maxExprBlockDepthFlag.Name) {
		cfg.MaxExprBlockDepth = ctx.GlobalInt(maxExprBlockDepthFlag.Name)
	}
	cfg.PrintTypes = ctx.GlobalBool(printTypesFlag.Name)
	cfg.PrintValueMoves = ctx.GlobalBool(printValueMovesFlag.Name)
	cfg.PrintTempMoves = ctx.GlobalBool(printTempMovesFlag.Name)
	cfg.PrintMallocs = ctx.GlobalBool(printMallocsFlag.Name)
	cfg.ReportPath = ctx.GlobalString(reportFlag.Name)
}
