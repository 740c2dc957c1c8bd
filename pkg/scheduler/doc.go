/*
Package scheduler runs monitors on their check intervals and system jobs on
their configured cadences.

A one-second tick scans the table of scheduled monitors and hands due ones
to a fixed worker pool. A monitor is never probed reentrantly: while one
check is in flight, later due times are skipped. Each completed check is
persisted, the monitor's status fields are updated, and a notification is
sent when the status transition warrants it.
*/
package scheduler
