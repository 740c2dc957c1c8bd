/*
Package notify decides when a monitor result warrants an email and delivers
it over SMTP.

Notifications are edge-triggered: the first result for a monitor notifies
only when it is unhealthy, and every later result notifies only when the
status changed from the previous result. Digest emails group long-running
unhealthy monitors per space.

The mailer is reconfigurable at runtime; until it is configured, sends are
reported as ErrNotConfigured and callers log a warning instead of failing
the probe pipeline.
*/
package notify
