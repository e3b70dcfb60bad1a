package etl

import (
	"context"
	"time"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/internal/metrics"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/logger"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/utils"
)

// RunResult is the outcome of one endpoint.
type RunResult struct {
	Endpoint   string
	Collection string
	Result     models.LoadResult
	// Records is the number of records the transformer produced.
	Records int
	// Total is the upstream totalResults, when the response carried it.
	Total          int
	SchemaMismatch bool
	Err            error
	Duration       time.Duration
}

func (r RunResult) OK() bool { return r.Err == nil }

type Pipeline struct {
	Extractor Extractor
	Loader    Loader
	Stamper   *Stamper
	Metrics   *metrics.Metrics
	DryRun    bool
}

// NewPipeline creates a pipeline with dry-run support.
func NewPipeline(ext Extractor, loader Loader, dryRun bool) *Pipeline {
	return &Pipeline{
		Extractor: ext,
		Loader:    loader,
		Stamper:   NewStamper(nil),
		DryRun:    dryRun,
	}
}

// Run drives each descriptor through extract, transform and load in order.
// A failing endpoint never stops the ones after it.
func (p *Pipeline) Run(ctx context.Context, descriptors []models.EndpointDescriptor) []RunResult {
	logger.Infof("Starting pipeline. Endpoints: %d, DryRun: %v", len(descriptors), p.DryRun)
	startTime := time.Now()

	results := make([]RunResult, 0, len(descriptors))
	written := 0
	failed := 0
	for _, d := range descriptors {
		res := p.runEndpoint(ctx, d)
		results = append(results, res)
		written += res.Result.Inserted + res.Result.Modified
		if !res.OK() {
			failed++
		}
	}

	duration := time.Since(startTime)
	rate := 0.0
	if duration.Seconds() > 0 {
		rate = float64(written) / duration.Seconds()
	}
	logger.Infof("Pipeline finished. Endpoints: %d, Failed: %d, Written: %d, Rate: %.2f docs/sec",
		len(results), failed, written, rate)
	return results
}

func (p *Pipeline) runEndpoint(ctx context.Context, d models.EndpointDescriptor) RunResult {
	log := logger.With("endpoint", d.Name)
	start := time.Now()
	res := RunResult{Endpoint: d.Name, Collection: d.Collection}
	finish := func() RunResult {
		res.Duration = time.Since(start)
		if res.Err != nil {
			p.Metrics.EndpointFailed(d.Name, KindOf(res.Err).String())
		}
		p.Metrics.EndpointDone(d.Name, res.Duration, res.Err == nil, time.Now())
		return res
	}

	log.Info("processing endpoint", "variant", string(d.Variant), "collection", d.Collection)

	stamper := p.Stamper
	if stamper == nil {
		stamper = NewStamper(nil)
	}
	transformer, err := TransformerFor(d.Variant, stamper)
	if err != nil {
		res.Err = err
		log.Error("endpoint skipped", "error", err)
		return finish()
	}

	// 1. Extract
	raw, err := p.Extractor.Fetch(ctx, d.Name, d.URL)
	if err != nil {
		res.Err = err
		log.Error("extraction failed, endpoint abandoned", "kind", KindOf(err).String(), "error", err)
		return finish()
	}
	if total, ok := utils.IntAt(map[string]interface{}(raw), "totalResults"); ok {
		res.Total = total
	}

	// 2. Transform
	records, found := transformer.Transform(d.ResponseKey, raw)
	res.Records = len(records)
	if !found {
		res.SchemaMismatch = true
		log.Warn("payload key not found in response", "kind", KindSchemaMismatch.String(), "response_key", d.ResponseKey)
	}
	log.Info("transformed records", "records", len(records), "total_results", res.Total)

	// 3. Load (skip if DryRun)
	if p.DryRun {
		log.Info("[DRY RUN] would load records", "records", len(records), "collection", d.Collection)
		res.Result = models.LoadResult{NoOp: true}
		return finish()
	}

	lr, err := p.Loader.Load(ctx, d, records)
	res.Result = lr
	if err != nil {
		res.Err = err
		log.Error("load failed", "kind", KindOf(err).String(), "error", err)
		return finish()
	}
	log.Info("endpoint loaded", "result", lr.String(), "noop", lr.NoOp)
	return finish()
}
