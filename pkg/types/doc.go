/*
Package types defines the core entities shared across uplook: spaces,
monitors, and monitor results.

A Monitor is a tagged variant: the Type field selects between the URL and
database configurations carried in the same struct. Probe dispatch is a
switch on Type, so there is no interface hierarchy to implement when adding
behavior for a single variant.

Results are append-only. A result records the ordered list of checks that
were configured for the probe (check_list), the number that failed, and a
per-check detail record. The invariant FailedChecks == 0 <=> Status ==
StatusHealthy holds for every result produced by the probe engines.
*/
package types
