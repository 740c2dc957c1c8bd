/*
Package jobs implements the daemon's periodic system jobs and the run
tracking around them.

Two jobs exist: health_alert sends one digest email per space listing
monitors that have been unhealthy past a threshold, and data_cleanup
deletes results older than their status-specific retention TTLs. Each job
is wrapped in a Tracked runner that records last run time, run and error
counts, and a derived success rate.
*/
package jobs
