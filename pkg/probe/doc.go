/*
Package probe runs the actual health checks behind monitors.

URL monitors get an HTTP GET with a configurable timeout, expected status
code, optional body substring match, and an independent TLS certificate
inspection. Database monitors get a connect-then-query check against
PostgreSQL, MySQL, or SQL Server with separate connection and query
timeouts.

A probe never returns a Go error: every failure is folded into the result's
per-check details so the scheduler persists successes and failures the same
way. A result's check list always reflects what the monitor is configured to
check, independent of which checks passed.
*/
package probe
