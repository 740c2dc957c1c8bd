/*
Package daemon assembles the long-running process: BoltDB store, config
manager, mailer, scheduler, control socket, and the optional Prometheus
listener.

Lifecycle: a PID file guards against double starts, SIGINT/SIGTERM trigger
a graceful shutdown (scheduler drained, socket unlinked, store closed), and
SIGHUP reloads the config file and reapplies email settings in place.
*/
package daemon
