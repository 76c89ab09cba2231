package connector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fathomdata/sqlmux/pkg/entity"
	"github.com/fathomdata/sqlmux/pkg/logging"
	"github.com/fathomdata/sqlmux/pkg/sqlcheck"
)

// MaxResultRows bounds how many rows a raw query collects.
const MaxResultRows = 1000

// ExecuteQuery runs a raw row-returning statement against one engine,
// outside any session. Schema qualification, if needed, must be spelled in
// the SQL. String arguments are screened for injection payloads before the
// query runs; the result is capped at MaxResultRows.
func (c *Connector) ExecuteQuery(ctx context.Context, engineName, query string, args ...any) ([]map[string]any, error) {
	if err := sqlcheck.CheckValues(args); err != nil {
		return nil, err
	}
	db, err := c.Engine(engineName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	results, err := entity.RowsToMapsLimit(rows, MaxResultRows)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("query executed",
		zap.String("engine", engineLabel(engineName)),
		zap.String("query", logging.SanitizeQuery(query)),
		zap.Int("rows", len(results)),
		zap.Duration("elapsed", time.Since(start)))
	return results, nil
}

// ExecuteStatement runs a raw non-row statement against one engine and
// returns the affected row count. Arguments are screened like ExecuteQuery.
func (c *Connector) ExecuteStatement(ctx context.Context, engineName, query string, args ...any) (int64, error) {
	if err := sqlcheck.CheckValues(args); err != nil {
		return 0, err
	}
	db, err := c.Engine(engineName)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("execute statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// some drivers cannot report this; the statement still ran
		affected = 0
	}

	c.logger.Debug("statement executed",
		zap.String("engine", engineLabel(engineName)),
		zap.String("query", logging.SanitizeQuery(query)),
		zap.Int64("rows_affected", affected))
	return affected, nil
}
