package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/datasus/sihrd/internal/app"
	"github.com/datasus/sihrd/internal/job"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

type globalFlags struct {
	envFile        string
	configFile     string
	processingDate string
	logLevel       string
}

// exitError carries the exit code of a job that ran and did not complete.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("job ended with exit code %d", e.code)
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "sihrd",
		Short: "Build the trusted and refined SIH/RD hospitalization tables",
		Long: `sihrd runs the SIH/RD pipeline: the raw monthly AIH records are typed and
renamed into the trusted table, which is enriched with municipality, procedure and
categorical labels into the refined table. Every table is fully replaced on each run.

Optional steps load the registry CSVs and the raw parquet files from storage, migrate
the SQL warehouse schema and export the refined table as partitioned parquet.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	envDefault := os.Getenv("ENV_FILE_PATH")
	if envDefault == "" {
		envDefault = ".env"
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", envDefault, ".env file loaded before the configuration")
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "application.yaml to use instead of the embedded one")
	root.PersistentFlags().StringVar(&flags.processingDate, "processing-date", "", "day ages are computed at (YYYY-MM-DD), default today in the reference timezone")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")

	root.AddCommand(
		stepsCommand(flags, "run", "Run trusted and refined plus every step enabled in configuration", nil),
		stepsCommand(flags, "trusted", "Rebuild the trusted table from the raw table", []string{job.StepTrusted}),
		stepsCommand(flags, "refined", "Rebuild the refined table from the trusted table and the lookups", []string{job.StepRefined}),
		stepsCommand(flags, "load-lookups", "Replace the lookup tables with the registry CSVs", []string{job.StepLoadMunicipality, job.StepLoadProcedure}),
		stepsCommand(flags, "load-raw", "Replace the raw table with the RD parquet files", []string{job.StepLoadRaw}),
		stepsCommand(flags, "export", "Export the refined table as partitioned parquet", []string{job.StepExport}),
		stepsCommand(flags, "migrate", "Create the raw and lookup tables of the SQL warehouse", []string{job.StepMigrate}),
	)
	return root
}

func stepsCommand(flags *globalFlags, use, short string, steps []string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSteps(cmd.Context(), flags, steps)
		},
	}
}

func runSteps(ctx context.Context, flags *globalFlags, steps []string) error {
	config := embeddedConfig
	if flags.configFile != "" {
		data, err := os.ReadFile(flags.configFile)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		config = data
	}

	var result *app.Result
	application := fx.New(append(app.New(ctx, app.Options{
		EnvFilePath:    flags.envFile,
		Config:         config,
		Steps:          steps,
		ProcessingDate: flags.processingDate,
		LogLevel:       flags.logLevel,
	}), fx.Populate(&result))...)
	if err := application.Err(); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(ctx, application.StartTimeout())
	defer cancelStart()
	if err := application.Start(startCtx); err != nil {
		return err
	}

	// A signal ends the wait early; the job sees the cancelled context and stops.
	<-application.Wait()
	<-result.Done()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), application.StopTimeout())
	defer cancelStop()
	if err := application.Stop(stopCtx); err != nil {
		logger.Errorf("Failed to stop application: %v", err)
	}
	if code := result.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
