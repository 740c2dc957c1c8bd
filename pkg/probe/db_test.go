package probe

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplook/uplook/pkg/types"
)

func encryptPassword(t *testing.T, p *Prober, plaintext string) string {
	t.Helper()
	ciphertext, err := p.box.Encrypt(plaintext)
	require.NoError(t, err)
	return ciphertext
}

func TestConnectionString(t *testing.T) {
	p := newTestProber(t)

	tests := []struct {
		name       string
		dbType     string
		wantDriver string
		wantParts  []string
	}{
		{
			name:       "postgresql",
			dbType:     types.DBTypePostgres,
			wantDriver: "pgx",
			wantParts:  []string{"postgres://", "db.internal:5432", "sslmode=prefer", "connect_timeout=10"},
		},
		{
			name:       "mysql",
			dbType:     types.DBTypeMySQL,
			wantDriver: "mysql",
			wantParts:  []string{"tcp(db.internal:5432)", "timeout=10s"},
		},
		{
			name:       "sqlserver",
			dbType:     types.DBTypeSQLServer,
			wantDriver: "sqlserver",
			wantParts:  []string{"sqlserver://", "db.internal:5432", "database=appdb"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := types.NewDatabaseMonitor("db", "space-1", tt.dbType, "db.internal", 5432, "appdb", "monitor")
			m.EncryptedPassword = encryptPassword(t, p, "s3cret")

			driver, dsn, err := p.connectionString(m)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			for _, part := range tt.wantParts {
				assert.Contains(t, dsn, part)
			}
			// The stored ciphertext never leaks into the DSN.
			assert.NotContains(t, dsn, m.EncryptedPassword)
		})
	}
}

func TestConnectionStringEscapesPassword(t *testing.T) {
	p := newTestProber(t)

	m := types.NewDatabaseMonitor("db", "space-1", types.DBTypePostgres, "db.internal", 5432, "appdb", "monitor")
	m.EncryptedPassword = encryptPassword(t, p, "p@ss/word:with?chars")

	_, dsn, err := p.connectionString(m)
	require.NoError(t, err)
	assert.NotContains(t, dsn, "p@ss/word:with?chars")
	assert.Contains(t, dsn, "p%40ss%2Fword%3Awith%3Fchars")
}

func TestConnectionStringBadCiphertext(t *testing.T) {
	p := newTestProber(t)

	m := types.NewDatabaseMonitor("db", "space-1", types.DBTypePostgres, "db.internal", 5432, "appdb", "monitor")
	m.EncryptedPassword = "not-a-ciphertext"

	_, _, err := p.connectionString(m)
	assert.Error(t, err)
}

func TestStatementTimeout(t *testing.T) {
	assert.Equal(t, "SET statement_timeout = 30000", statementTimeout(types.DBTypePostgres, 30))
	assert.Equal(t, "SET max_execution_time = 30000", statementTimeout(types.DBTypeMySQL, 30))
	assert.Equal(t, "SET LOCK_TIMEOUT 30000", statementTimeout(types.DBTypeSQLServer, 30))
	assert.Empty(t, statementTimeout("oracle", 30))
}

func TestCheckDatabaseUnsupportedType(t *testing.T) {
	p := newTestProber(t)

	m := types.NewDatabaseMonitor("db", "space-1", "oracle", "db.internal", 1521, "appdb", "monitor")
	result := p.Probe(context.Background(), m)

	assert.Equal(t, types.StatusUnhealthy, result.Status)
	assert.Equal(t, 2, result.FailedChecks)
	assert.Equal(t, []string{types.CheckConnection, types.CheckQuery}, result.CheckList)
	assert.True(t, strings.Contains(result.Details[types.CheckConnection].Error, "Unsupported database type"))
}

func TestCheckDatabaseConnectionFailure(t *testing.T) {
	p := newTestProber(t)

	// Reserve a port and close it so the connection is refused quickly.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := types.NewDatabaseMonitor("db", "space-1", types.DBTypeMySQL, "127.0.0.1", port, "appdb", "monitor")
	m.ConnectionTimeoutSeconds = 2
	m.EncryptedPassword = encryptPassword(t, p, "s3cret")

	result := p.Probe(context.Background(), m)

	assert.Equal(t, types.StatusUnhealthy, result.Status)
	assert.Equal(t, 2, result.FailedChecks)
	assert.False(t, *result.Details[types.CheckConnection].Connected)
	assert.Equal(t, "Failed to establish connection", result.Details[types.CheckConnection].Error)
	assert.False(t, *result.Details[types.CheckQuery].Executed)
	assert.Equal(t, "Failed to execute query due to connection error", result.Details[types.CheckQuery].Error)
}
