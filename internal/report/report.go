// Package report records the outcome of a run once every endpoint is done.
package report

import (
	"context"
	"time"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/internal/etl"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/logger"
)

// Run is everything a reporter gets about one invocation.
type Run struct {
	ID       string
	Started  time.Time
	Finished time.Time
	DryRun   bool
	Results  []etl.RunResult
}

// Failed counts endpoints that ended with an error.
func (r Run) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

type Reporter interface {
	Report(ctx context.Context, run Run) error
}

// LogReporter writes one line per endpoint plus a totals line.
type LogReporter struct{}

func (LogReporter) Report(_ context.Context, run Run) error {
	log := logger.With("run_id", run.ID)
	var inserted, modified, skipped int
	for _, res := range run.Results {
		inserted += res.Result.Inserted
		modified += res.Result.Modified
		skipped += res.Result.Skipped

		switch {
		case res.Err != nil:
			log.Error("endpoint failed", "endpoint", res.Endpoint, "kind", etl.KindOf(res.Err).String(), "error", res.Err)
		case res.SchemaMismatch:
			log.Warn("endpoint returned no payload", "endpoint", res.Endpoint, "collection", res.Collection)
		default:
			log.Info("endpoint loaded", "endpoint", res.Endpoint, "collection", res.Collection,
				"records", res.Records, "inserted", res.Result.Inserted, "modified", res.Result.Modified,
				"skipped", res.Result.Skipped, "duration", res.Duration.Round(time.Millisecond))
		}
	}
	log.Info("run summary", "endpoints", len(run.Results), "failed", run.Failed(),
		"inserted", inserted, "modified", modified, "skipped", skipped,
		"elapsed", run.Finished.Sub(run.Started).Round(time.Millisecond))
	return nil
}

// Multi fans a run out to several reporters and returns the first error.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, run Run) error {
	var first error
	for _, r := range m {
		if err := r.Report(ctx, run); err != nil && first == nil {
			first = err
		}
	}
	return first
}
