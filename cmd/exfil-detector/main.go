// Package main is the entry point for the insider-threat correlation
// engine's batch CLI driver.
//
// # Application flow
//
//  1. Configuration: layered koanf load (defaults, --config YAML, EXFIL_
//     env overrides), validated with go-playground/validator.
//  2. Sources: the reference FileSource ActivitySource/FileMetadataSource
//     adapters are wired from the config's activity/metadata file paths;
//     a production deployment replaces these with real paginated Admin
//     SDK Reports API / Drive API clients behind the same interfaces.
//  3. Store: in-process by default, Redis-backed when redis_url is set.
//  4. Pipeline: fetch both streams concurrently behind circuit breakers,
//     correlate, and emit findings sorted by (severity, exfil_time).
//
// Exit codes: 0 no high-severity findings; 1 at least one high-severity
// finding; 2 bad input/config; 3 upstream auth or API error; 4 unexpected.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	json "github.com/goccy/go-json"

	"github.com/haasonsaas/gemini-exfil-detector/internal/clock"
	"github.com/haasonsaas/gemini-exfil-detector/internal/config"
	"github.com/haasonsaas/gemini-exfil-detector/internal/filecontext"
	"github.com/haasonsaas/gemini-exfil-detector/internal/ingest"
	"github.com/haasonsaas/gemini-exfil-detector/internal/intent"
	"github.com/haasonsaas/gemini-exfil-detector/internal/logging"
	"github.com/haasonsaas/gemini-exfil-detector/internal/model"
	"github.com/haasonsaas/gemini-exfil-detector/internal/pipeline"
	"github.com/haasonsaas/gemini-exfil-detector/internal/recon"
	"github.com/haasonsaas/gemini-exfil-detector/internal/xerrors"
)

// version is injected at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("exfil-detector", flag.ContinueOnError)
	flags.SetOutput(stderr)

	configPath := flags.String("config", "", "path to the YAML configuration file (required)")
	lookbackHours := flags.Int("lookback-hours", 24, "how many hours of activity to fetch")
	windowMinutes := flags.Int("window-minutes", 0, "recon-to-egress correlation window in minutes")
	outputPath := flags.String("output", "", "path to write findings JSON (stdout if omitted)")
	verbose := flags.Bool("verbose", false, "enable debug logging")
	showVersion := flags.Bool("version", false, "print the version and exit")

	if err := flags.Parse(args); err != nil {
		return xerrors.ExitCode(xerrors.Classify(err, xerrors.SeverityConfig))
	}

	if *showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}

	logLevel := "info"
	if *verbose {
		logLevel = "debug"
	}
	logging.Init(logging.Config{Level: logLevel, Format: "json", Output: stderr})

	if *configPath == "" {
		logging.Error().Msg("--config is required")
		return xerrors.ExitCode(xerrors.Classify(xerrors.ErrConfigInvalid, xerrors.SeverityConfig))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error().Err(err).Msg("failed to load configuration")
		return xerrors.ExitCode(xerrors.Classify(err, xerrors.SeverityConfig))
	}

	findings, err := runDetection(context.Background(), cfg, *lookbackHours, *windowMinutes)
	if err != nil {
		logging.Error().Err(err).Msg("detection run failed")
		return xerrors.ExitCode(err)
	}

	if err := emit(findings, *outputPath, stdout); err != nil {
		logging.Error().Err(err).Msg("failed to emit findings")
		return xerrors.ExitCode(xerrors.Classify(err, xerrors.SeverityUnexpected))
	}

	for _, f := range findings {
		if f.Severity == model.SeverityHigh {
			return 1
		}
	}
	return 0
}

func runDetection(ctx context.Context, cfg *config.Config, lookbackHours, windowMinutes int) ([]model.Finding, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, xerrors.Classify(fmt.Errorf("loading timezone %s: %w", cfg.Timezone, err), xerrors.SeverityConfig)
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, xerrors.Classify(err, xerrors.SeverityConfig)
	}

	var fileEnricher *filecontext.Enricher
	if cfg.FileMetadataFile != "" {
		src, err := filecontext.NewFileSource(cfg.FileMetadataFile)
		if err != nil {
			return nil, xerrors.Classify(err, xerrors.SeverityConfig)
		}
		fileEnricher = filecontext.New(src, cfg.SeverityOverrides.SensitiveLabels)
	}

	classifier := intent.New(cfg.Suppressions.AllowedExternalDomains, cfg.PartnerDomains, clock.System{})

	geminiSource := ingest.FileSource{Path: cfg.ReconActivityFile}
	driveSource := ingest.FileSource{Path: cfg.EgressActivityFile}

	driver := pipeline.New(geminiSource, driveSource, store, fileEnricher, classifier, cfg.CanaryDocIDs, windowMinutes, loc)

	end := time.Now().In(loc)
	start := end.Add(-time.Duration(lookbackHours) * time.Hour)

	findings, _, err := driver.Run(ctx, start, end)
	return findings, err
}

func newStore(cfg *config.Config) (recon.Store, error) {
	if cfg.RedisURL == "" {
		return recon.NewInMemoryStore(0), nil
	}
	store, err := recon.NewRedisStore(cfg.RedisURL, 0)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return store, nil
}

func emit(findings []model.Finding, outputPath string, stdout io.Writer) error {
	if findings == nil {
		findings = []model.Finding{}
	}
	data, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling findings: %w", err)
	}

	if outputPath == "" {
		_, err := stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(outputPath, append(data, '\n'), 0o644)
}
