package report

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/internal/etl"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/logger"
)

const resultsTable = "etl_run_results"

const createResultsTable = `
IF OBJECT_ID(N'dbo.etl_run_results', N'U') IS NULL
CREATE TABLE dbo.etl_run_results (
	id            BIGINT IDENTITY(1,1) PRIMARY KEY,
	run_id        UNIQUEIDENTIFIER NOT NULL,
	endpoint      NVARCHAR(128)    NOT NULL,
	collection    NVARCHAR(256)    NOT NULL,
	records       INT              NOT NULL,
	inserted      INT              NOT NULL,
	modified      INT              NOT NULL,
	skipped       INT              NOT NULL,
	schema_miss   BIT              NOT NULL,
	error_kind    NVARCHAR(32)     NULL,
	error_message NVARCHAR(MAX)    NULL,
	duration_ms   BIGINT           NOT NULL,
	dry_run       BIT              NOT NULL,
	finished_at   DATETIME2        NOT NULL
)`

// Execer is the part of *sql.DB the SQL reporter needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLReporter appends one row per endpoint to a SQL Server table.
type SQLReporter struct {
	DB Execer
}

func NewSQLReporter(db *sql.DB) *SQLReporter {
	return &SQLReporter{DB: db}
}

// EnsureSchema creates the results table when it does not exist yet.
func (s *SQLReporter) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, createResultsTable); err != nil {
		return fmt.Errorf("failed to create %s: %w", resultsTable, err)
	}
	return nil
}

func (s *SQLReporter) Report(ctx context.Context, run Run) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO dbo.%s
		(run_id, endpoint, collection, records, inserted, modified, skipped,
		 schema_miss, error_kind, error_message, duration_ms, dry_run, finished_at)
		VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9, @p10, @p11, @p12, @p13)`, resultsTable)

	for _, res := range run.Results {
		var kind, msg sql.NullString
		if res.Err != nil {
			kind = sql.NullString{String: etl.KindOf(res.Err).String(), Valid: true}
			msg = sql.NullString{String: res.Err.Error(), Valid: true}
		}
		_, err := s.DB.ExecContext(ctx, query,
			run.ID,
			res.Endpoint,
			res.Collection,
			res.Records,
			res.Result.Inserted,
			res.Result.Modified,
			res.Result.Skipped,
			res.SchemaMismatch,
			kind,
			msg,
			res.Duration.Milliseconds(),
			run.DryRun,
			run.Finished.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to record result for %s: %w", res.Endpoint, err)
		}
	}
	logger.Debugf("Recorded %d endpoint results in %s", len(run.Results), resultsTable)
	return nil
}
