package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/internal/config"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/internal/etl"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/internal/metrics"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/internal/report"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/database"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/logger"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
)

const pushJob = "nvd_etl"

func runPipeline(ctx context.Context, opts *RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if err := setupLogging(cfg, opts.LogFile); err != nil {
		return err
	}
	defer logger.Close()

	descriptors, err := resolveDescriptors(cfg, opts.EndpointsFile, opts.Only)
	if err != nil {
		return err
	}

	// Fail fast on an unreachable destination; the loader opens its own
	// session per endpoint afterwards.
	if !opts.DryRun {
		client, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = client.Disconnect(disconnectCtx)
		cancel()
	}

	runID := uuid.NewString()
	m := metrics.New()

	extCfg := etl.DefaultExtractorConfig()
	if cfg.UserAgent != "" {
		extCfg.UserAgent = cfg.UserAgent
	}
	extCfg.APIKey = cfg.APIKey
	extCfg.RequestsPerSecond = cfg.RequestsPerSecond

	extractor := etl.NewHTTPExtractor(extCfg, etl.WithMetrics(m))
	loader := etl.NewMongoLoader(database.NewMongoOpener(cfg.MongoURI), m)
	pipeline := etl.NewPipeline(extractor, loader, opts.DryRun)
	pipeline.Metrics = m

	logger.Infof("Run %s starting for connector %s", runID, cfg.ConnectorName)
	started := time.Now()
	results := pipeline.Run(ctx, descriptors)
	run := report.Run{
		ID:       runID,
		Started:  started,
		Finished: time.Now(),
		DryRun:   opts.DryRun,
		Results:  results,
	}

	reporters := report.Multi{report.LogReporter{}}
	if cfg.SQLConnString != "" {
		sqlDB, err := database.ConnectSQL(cfg.SQLConnString)
		if err != nil {
			logger.Warnf("Run report will not be stored: %v", err)
		} else {
			defer sqlDB.Close()
			reporters = append(reporters, report.NewSQLReporter(sqlDB))
		}
	}
	if err := reporters.Report(ctx, run); err != nil {
		logger.Warnf("Failed to report run %s: %v", runID, err)
	}

	if err := m.Push(cfg.PushgatewayURL, pushJob, runID); err != nil {
		logger.Warnf("Failed to push metrics to %s: %v", cfg.PushgatewayURL, err)
	}

	if failed := run.Failed(); failed > 0 {
		logger.Warnf("Run %s finished with %d of %d endpoints failed", runID, failed, len(results))
	} else {
		logger.Infof("Run %s finished successfully.", runID)
	}
	return nil
}

func setupLogging(cfg *config.Config, logFile string) error {
	level := logger.ParseLevel(cfg.LogLevel)
	json := strings.EqualFold(cfg.LogFormat, "json")
	if logFile != "" {
		if err := logger.InitLogger(logFile, level, json); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		return nil
	}
	logger.Init(os.Stdout, level, json)
	return nil
}

func resolveDescriptors(cfg *config.Config, file string, only []string) ([]models.EndpointDescriptor, error) {
	specs := config.DefaultEndpoints()
	if file != "" {
		var err error
		specs, err = config.LoadEndpoints(file)
		if err != nil {
			return nil, err
		}
	}
	return config.BuildDescriptors(cfg, specs, only)
}

func listEndpoints(cmd *cobra.Command, file string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	descriptors, err := resolveDescriptors(cfg, file, nil)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVARIANT\tDESTINATION\tURL")
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s.%s\t%s\n", d.Name, d.Variant, d.Database, d.Collection, etl.RedactURL(d.URL))
	}
	return w.Flush()
}
