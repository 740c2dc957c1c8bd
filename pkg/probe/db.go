package probe

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/uplook/uplook/pkg/types"
)

func (p *Prober) checkDatabase(ctx context.Context, m *types.Monitor) *types.Result {
	result := types.NewResult(m)
	result.CheckList = []string{types.CheckConnection, types.CheckQuery}

	driver, dsn, err := p.connectionString(m)
	if err != nil {
		fail(result, types.CheckConnection, types.CheckDetail{Connected: boolPtr(false), Error: err.Error()})
		fail(result, types.CheckQuery, types.CheckDetail{Executed: boolPtr(false), Error: err.Error()})
		result.Status = types.StatusUnhealthy
		return result
	}

	start := time.Now()
	defer func() {
		result.ResponseTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	}()

	db, err := sql.Open(driver, dsn)
	if err != nil {
		p.failDatabaseConnection(result)
		return result
	}
	defer db.Close()

	connCtx, cancel := context.WithTimeout(ctx, time.Duration(m.ConnectionTimeoutSeconds)*time.Second)
	defer cancel()
	if err := db.PingContext(connCtx); err != nil {
		p.logger.Debug().Str("monitor_id", m.ID).Err(err).Msg("Database connection failed")
		p.failDatabaseConnection(result)
		return result
	}
	result.Details[types.CheckConnection] = types.CheckDetail{Connected: boolPtr(true)}

	queryCtx, cancelQuery := context.WithTimeout(ctx, time.Duration(m.QueryTimeoutSeconds)*time.Second)
	defer cancelQuery()

	// Server-side statement timeouts back up the context deadline so a
	// runaway query cannot hold a server session open.
	if stmt := statementTimeout(m.DBType, m.QueryTimeoutSeconds); stmt != "" {
		if _, err := db.ExecContext(queryCtx, stmt); err != nil {
			p.logger.Debug().Str("monitor_id", m.ID).Err(err).Msg("Failed to set statement timeout")
		}
	}

	rows, err := db.QueryContext(queryCtx, m.TestQuery)
	if err != nil {
		fail(result, types.CheckQuery, types.CheckDetail{Executed: boolPtr(false), Error: msgQueryFailed})
		result.Status = types.StatusUnhealthy
		return result
	}
	rows.Close()
	result.Details[types.CheckQuery] = types.CheckDetail{Executed: boolPtr(true)}

	p.logger.Debug().
		Str("monitor_id", m.ID).
		Str("db_type", m.DBType).
		Str("status", string(result.Status)).
		Msg("Database check completed")

	return result
}

// failDatabaseConnection marks both checks failed: a query cannot run
// without a connection, so the failure count is always two here.
func (p *Prober) failDatabaseConnection(result *types.Result) {
	fail(result, types.CheckConnection, types.CheckDetail{Connected: boolPtr(false), Error: msgConnectionFailed})
	fail(result, types.CheckQuery, types.CheckDetail{Executed: boolPtr(false), Error: msgQueryConnection})
	result.Status = types.StatusUnhealthy
}

// connectionString builds the driver name and DSN for the monitor's dialect,
// decrypting the stored password along the way.
func (p *Prober) connectionString(m *types.Monitor) (driver, dsn string, err error) {
	password, err := p.box.Decrypt(m.EncryptedPassword)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt database password: %w", err)
	}

	switch m.DBType {
	case types.DBTypePostgres:
		dsn = fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=prefer&connect_timeout=%d",
			url.QueryEscape(m.Username),
			url.QueryEscape(password),
			net.JoinHostPort(m.Host, strconv.Itoa(m.Port)),
			url.PathEscape(m.Database),
			m.ConnectionTimeoutSeconds)
		return "pgx", dsn, nil

	case types.DBTypeMySQL:
		cfg := mysql.NewConfig()
		cfg.User = m.Username
		cfg.Passwd = password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
		cfg.DBName = m.Database
		cfg.Timeout = time.Duration(m.ConnectionTimeoutSeconds) * time.Second
		return "mysql", cfg.FormatDSN(), nil

	case types.DBTypeSQLServer:
		u := &url.URL{
			Scheme: "sqlserver",
			User:   url.UserPassword(m.Username, password),
			Host:   net.JoinHostPort(m.Host, strconv.Itoa(m.Port)),
		}
		q := url.Values{}
		q.Set("database", m.Database)
		q.Set("dial timeout", strconv.Itoa(m.ConnectionTimeoutSeconds))
		u.RawQuery = q.Encode()
		return "sqlserver", u.String(), nil

	default:
		return "", "", fmt.Errorf("%s", msgUnsupportedDB(m.DBType))
	}
}

// statementTimeout returns the dialect's session-level statement timeout
// command. Every dialect takes milliseconds.
func statementTimeout(dbType string, seconds int) string {
	ms := seconds * 1000
	switch dbType {
	case types.DBTypePostgres:
		return fmt.Sprintf("SET statement_timeout = %d", ms)
	case types.DBTypeMySQL:
		return fmt.Sprintf("SET max_execution_time = %d", ms)
	case types.DBTypeSQLServer:
		return fmt.Sprintf("SET LOCK_TIMEOUT %d", ms)
	default:
		return ""
	}
}
