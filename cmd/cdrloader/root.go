package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gofhir/cdrloader/pkg/upload"
)

const (
	exitFatal = upload.ExitFatal
	envPrefix = "CDRLOADER"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	stdout  io.Writer
	stderr  io.Writer
	cfgFile string
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(stderr, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return exitFatal
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}

	root := &cobra.Command{
		Use:   "cdrloader",
		Short: "Upload FHIR conformance resources to a clinical data repository",
		Long: `cdrloader uploads the CodeSystem, ValueSet, ConceptMap, StructureDefinition,
SearchParameter, CompartmentDefinition and OperationDefinition resources of a
FHIR package to the FHIR store of a clinical data repository.

Resources are created one at a time in dependency order with a conditional
create on their canonical url. Rejected requests are written to the failures
file together with the response.

Every flag can also be set with a CDRLOADER_ environment variable
(CDRLOADER_ORG, CDRLOADER_ARTIFACT_BUCKET, ...), a .env file or --config.

Examples:
  cdrloader -m hl7.fhir.us.core -o my-org -u user -w pass -c client -s secret
  cdrloader plan -m ./package --where "status = 'active'"
  cdrloader upload -m hl7.fhir.r4.core#4.0.1 -v 4.0 --format json`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.initConfig,
		RunE:              a.runUpload,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	registerFlags(root)

	root.AddCommand(
		&cobra.Command{
			Use:   "upload",
			Short: "Upload the package resources (default command)",
			Args:  cobra.NoArgs,
			RunE:  a.runUpload,
		},
		&cobra.Command{
			Use:   "plan",
			Short: "Print the upload order without contacting the repository",
			Args:  cobra.NoArgs,
			RunE:  a.runPlan,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "cdrloader %s (commit: %s)\n", Version, Commit)
				return nil
			},
		},
	)

	if err := a.v.BindPFlags(root.PersistentFlags()); err != nil {
		panic(err)
	}
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	return root
}

// initConfig loads .env and the optional config file.
func (a *app) initConfig(_ *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fatal(fmt.Errorf("failed to load .env: %w", err))
	}
	if a.cfgFile == "" {
		return nil
	}
	a.v.SetConfigFile(a.cfgFile)
	if err := a.v.ReadInConfig(); err != nil {
		return fatal(fmt.Errorf("failed to read config file %s: %w", a.cfgFile, err))
	}
	return nil
}
