package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cdrloader "github.com/gofhir/cdrloader"
	"github.com/gofhir/cdrloader/pkg/artifact"
	"github.com/gofhir/cdrloader/pkg/auth"
	"github.com/gofhir/cdrloader/pkg/cdr"
	"github.com/gofhir/cdrloader/pkg/failures"
	"github.com/gofhir/cdrloader/pkg/loader"
	"github.com/gofhir/cdrloader/pkg/logger"
	"github.com/gofhir/cdrloader/pkg/resource"
	"github.com/gofhir/cdrloader/pkg/selector"
	"github.com/gofhir/cdrloader/pkg/upload"
)

func (a *app) newLogger() (*zap.Logger, error) {
	log, err := logger.New(a.stderr, a.v.GetString(flagLogLevel), a.v.GetString(flagLogFormat))
	if err != nil {
		return nil, fatal(err)
	}
	return log, nil
}

func (a *app) runPlan(_ *cobra.Command, _ []string) error {
	cfg, err := a.config(true)
	if err != nil {
		return fatal(err)
	}
	log, err := a.newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ordered, err := prepare(cfg, log)
	if err != nil {
		return fatal(err)
	}
	return printPlan(a.stdout, ordered)
}

func (a *app) runUpload(cmd *cobra.Command, _ []string) error {
	cfg, err := a.config(false)
	if err != nil {
		return fatal(err)
	}
	log, err := a.newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	version := cdrloader.FHIRVersion(cfg.FHIRVersion)
	if !version.IsKnown() {
		log.Warn("unknown FHIR version, sending it unchanged", zap.String("fhir_version", cfg.FHIRVersion))
	}

	ordered, err := prepare(cfg, log)
	if err != nil {
		return fatal(err)
	}
	if cfg.DryRun {
		return printPlan(a.stdout, ordered)
	}

	grant := auth.NewPasswordGrant(cfg.TokenURL(), auth.Credentials{
		Username:     cfg.Username,
		Password:     cfg.Password,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, auth.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	client := cdr.NewClient(cfg.StoreURL(), version.MediaType(), cdr.WithTimeout(cfg.Timeout))

	orchestrator := upload.New(grant, client, failures.Opener(cfg.FailuresPath, cfg.FailuresFormat),
		upload.WithLogger(log),
		upload.WithMetrics(cdrloader.NewMetrics()),
		upload.WithRate(cfg.Rate),
	)
	log.Info("starting upload",
		zap.String("run_id", orchestrator.RunID()),
		zap.String("store", cfg.StoreURL()),
		zap.Int("resources", len(ordered)))

	summary, err := orchestrator.Run(cmd.Context(), ordered)
	if summary != nil && summary.Attempted > 0 {
		printSummary(a.stdout, summary, cfg.FailuresPath)
	}
	if err != nil {
		return fatal(err)
	}

	if cfg.Artifact.Enabled() {
		if err := publish(cmd, cfg, summary.RunID, cfg.FailuresPath, log); err != nil {
			return fatal(err)
		}
	}

	if code := summary.ExitCode(); code != upload.ExitOK {
		return &ExitError{
			Code: code,
			Err:  fmt.Errorf("%d of %d resources failed, see %s", summary.Failed, summary.Total, cfg.FailuresPath),
		}
	}
	return nil
}

// prepare loads the package, applies the selector and sorts the result.
func prepare(cfg cdrloader.Config, log *zap.Logger) ([]resource.Resource, error) {
	sel, err := selector.New(cfg.Where)
	if err != nil {
		return nil, err
	}

	pkg, err := loader.New().Load(cfg.Module)
	if err != nil {
		return nil, fmt.Errorf("failed to load package %s: %w", cfg.Module, err)
	}
	for _, s := range pkg.Skipped {
		log.Warn("skipped file", zap.String("file", s.Name), zap.String("reason", s.Reason))
	}
	log.Info("loaded package",
		zap.String("name", pkg.Name),
		zap.String("version", pkg.Version),
		zap.String("path", pkg.Path),
		zap.Int("resources", len(pkg.Resources)),
		zap.Int("ignored", pkg.Ignored))

	if pkg.FHIRVersion != "" && cdrloader.ParseFHIRVersion(pkg.FHIRVersion).String() != cfg.FHIRVersion {
		log.Warn("package FHIR version differs from the requested version",
			zap.String("package", pkg.FHIRVersion),
			zap.String("requested", cfg.FHIRVersion))
	}

	selected, errs := sel.Filter(pkg.Resources)
	for _, err := range errs {
		log.Warn("selector evaluation failed", zap.Error(err))
	}
	if sel.Expression() != "" {
		log.Info("applied selector",
			zap.String("where", sel.Expression()),
			zap.Int("selected", len(selected)))
	}

	return resource.Sort(selected), nil
}

func publish(cmd *cobra.Command, cfg cdrloader.Config, runID, path string, log *zap.Logger) error {
	publisher, err := artifact.New(artifactConfig(cfg.Artifact))
	if err != nil {
		if errors.Is(err, artifact.ErrDisabled) {
			return nil
		}
		log.Error("artifact publication failed", zap.Error(err))
		return err
	}
	location, err := publisher.Publish(cmd.Context(), runID, path)
	if err != nil {
		log.Error("artifact publication failed", zap.Error(err), zap.String("local", path))
		return err
	}
	log.Info("published failure artifact", zap.String("location", location))
	return nil
}

func printPlan(w io.Writer, ordered []resource.Resource) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tRANK\tTYPE\tURL\tDETAIL")
	for i, r := range ordered {
		s := resource.Describe(r)
		url := s.URL
		if url == "" {
			url = "-"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", i+1, s.Rank, s.Type, url, s.Detail)
	}
	if err := tw.Flush(); err != nil {
		return fatal(err)
	}
	fmt.Fprintf(w, "%d resources\n", len(ordered))
	return nil
}

func printSummary(w io.Writer, s *upload.Summary, failuresPath string) {
	fmt.Fprintf(w, "Run %s: %d created, %d failed (%d without response) of %d in %s\n",
		s.RunID, s.Created, s.Failed, s.TransportFailed, s.Total, s.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tUPLOADS\tFAILED\tAVG")
	for _, ts := range s.Metrics.Types {
		var avg time.Duration
		if ts.Attempts > 0 {
			avg = ts.TotalTime / time.Duration(ts.Attempts) //nolint:gosec // attempts is small
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", ts.ResourceType, ts.Attempts, ts.Failures, avg.Round(time.Millisecond))
	}
	_ = tw.Flush()

	if s.Failed > 0 {
		fmt.Fprintf(w, "Failures written to %s\n", failuresPath)
	}
}
