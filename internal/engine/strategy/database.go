package strategy

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	// Database drivers, selected by the provider discriminator.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/engine"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/logger"
)

const (
	TypeDatabaseQuery = "database.query"

	// DatabaseConfigKey is the well-known configuration key for this strategy.
	DatabaseConfigKey = "DatabaseConfig"

	propConnectionTested = "ConnectionTested"
)

var providerDrivers = map[string]string{
	"postgresql": "postgres",
	"sqlserver":  "sqlserver",
	"mysql":      "mysql",
	"sqlite":     "sqlite3",
}

var destructiveKeywords = []string{"DROP", "TRUNCATE", "ALTER"}

type DatabaseQueryConfig struct {
	Provider         string                 `json:"provider"`
	ConnectionString string                 `json:"connection_string"`
	Query            string                 `json:"query"`
	IsReadOnly       bool                   `json:"is_read_only"`
	TimeoutSeconds   int                    `json:"timeout_seconds,omitempty"`
	Parameters       map[string]interface{} `json:"parameters,omitempty"`
}

func (c *DatabaseQueryConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *DatabaseQueryConfig) driverName() (string, error) {
	driver, ok := providerDrivers[strings.ToLower(c.Provider)]
	if !ok {
		return "", fmt.Errorf("database provider '%s' is not supported", c.Provider)
	}
	return driver, nil
}

// DatabaseQueryStrategy runs one SQL statement against an external database.
// Connections are acquired, used and released within a single Execute call.
type DatabaseQueryStrategy struct {
	*Lifecycle
}

func NewDatabaseQueryStrategy(log logger.Logger, metrics engine.Collector, opts ...Option) *DatabaseQueryStrategy {
	s := &DatabaseQueryStrategy{}
	s.Lifecycle = NewLifecycle(TypeDatabaseQuery, log, metrics, Hooks{
		ValidateInputs: s.validateInputs,
		SetupContext:   s.probeConnection,
	}, opts...)
	return s
}

func (s *DatabaseQueryStrategy) validateInputs(ctx context.Context, ec *engine.ExecutionContext) *engine.ValidationResult {
	vr := engine.NewValidationResult()

	cfg, err := configFrom[DatabaseQueryConfig](ec, DatabaseConfigKey)
	if err != nil {
		return vr.AddError(err.Error())
	}

	if strings.TrimSpace(cfg.ConnectionString) == "" {
		vr.AddError("connection string is required")
	}
	if strings.TrimSpace(cfg.Query) == "" {
		vr.AddError("query is required")
	}
	if _, err := cfg.driverName(); err != nil {
		vr.AddError(err.Error())
	}
	if cfg.TimeoutSeconds != 0 && (cfg.TimeoutSeconds < 1 || cfg.TimeoutSeconds > 1800) {
		vr.AddError("timeout must be between 1 second and 30 minutes")
	}

	// Destructive statements on a writable connection are allowed through
	// with only a warning. See the test suite before hardening this.
	if !cfg.IsReadOnly {
		upper := strings.ToUpper(cfg.Query)
		for _, keyword := range destructiveKeywords {
			if strings.Contains(upper, keyword) {
				vr.AddWarning(fmt.Sprintf("query contains potentially destructive keyword %s", keyword))
			}
		}
	}

	return vr
}

// probeConnection opens and pings the database so that a bad connection
// string fails fast, before execute.
func (s *DatabaseQueryStrategy) probeConnection(ctx context.Context, ec *engine.ExecutionContext) error {
	cfg, err := configFrom[DatabaseQueryConfig](ec, DatabaseConfigKey)
	if err != nil {
		return err
	}
	driver, err := cfg.driverName()
	if err != nil {
		return err
	}

	db, err := sql.Open(driver, cfg.ConnectionString)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	if err := db.PingContext(probeCtx); err != nil {
		return fmt.Errorf("failed to validate database connection: %w", err)
	}

	ec.SetProperty(propConnectionTested, true)
	return nil
}

func (s *DatabaseQueryStrategy) Execute(ctx context.Context, ec *engine.ExecutionContext) *engine.ExecutionResult {
	cfg, err := configFrom[DatabaseQueryConfig](ec, DatabaseConfigKey)
	if err != nil {
		return engine.FailedResult("", err, 0)
	}
	driver, err := cfg.driverName()
	if err != nil {
		return engine.FailedResult("", err, 0)
	}

	query, args, err := rewriteNamedParameters(cfg.Query, cfg.Parameters, strings.ToLower(cfg.Provider))
	if err != nil {
		return engine.FailedResult("", err, 0)
	}

	out, duration, err := s.RunProtected(ctx, cfg.Timeout(), func(callCtx context.Context) (interface{}, error) {
		db, err := sql.Open(driver, cfg.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("failed to open database connection: %w", err)
		}
		defer db.Close()

		if isRowReturning(cfg.Query) {
			return queryRows(callCtx, db, query, args)
		}

		result, err := db.ExecContext(callCtx, query, args...)
		if err != nil {
			return nil, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		return affected, nil
	})
	if err != nil {
		return s.FailureResult(ctx, ec, err, duration)
	}

	result := engine.CompletedResult(out, duration)
	if rows, ok := out.([]map[string]interface{}); ok {
		result = result.WithMetadata("RowCount", len(rows))
	}
	return result
}

// isRowReturning classifies by leading keyword only; the SQL is not parsed.
func isRowReturning(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

func queryRows(ctx context.Context, db *sql.DB, query string, args []interface{}) (interface{}, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			value := values[i]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			// SQL NULL stays an explicit nil entry, never omitted.
			row[column] = value
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var namedParamPattern = regexp.MustCompile(`[:@][A-Za-z_][A-Za-z0-9_]*`)

// rewriteNamedParameters converts :name / @name placeholders into the
// provider's positional or named form and collects the bound arguments in
// placeholder order. Postgres casts (::type) are left untouched.
func rewriteNamedParameters(query string, params map[string]interface{}, provider string) (string, []interface{}, error) {
	if len(params) == 0 && !namedParamPattern.MatchString(query) {
		return query, nil, nil
	}

	var args []interface{}
	var sb strings.Builder
	last := 0
	position := 0

	for _, loc := range namedParamPattern.FindAllStringIndex(query, -1) {
		start, end := loc[0], loc[1]
		// Skip ::type casts and @@variable built-ins.
		if start > 0 && query[start-1] == query[start] {
			continue
		}

		name := query[start+1 : end]
		value, ok := params[name]
		if !ok {
			return "", nil, fmt.Errorf("missing query parameter '%s'", name)
		}

		sb.WriteString(query[last:start])
		position++
		switch provider {
		case "postgresql":
			fmt.Fprintf(&sb, "$%d", position)
			args = append(args, value)
		case "sqlserver":
			sb.WriteString("@" + name)
			args = append(args, sql.Named(name, value))
		default: // mysql, sqlite
			sb.WriteString("?")
			args = append(args, value)
		}
		last = end
	}
	sb.WriteString(query[last:])

	return sb.String(), args, nil
}
