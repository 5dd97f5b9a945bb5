// Package store persists the canonical crash-triage model in SQLite:
// deduplicated symbols and symbol sources, and the backtrace skeleton
// (threads, frames, tagged fingerprint hashes) of each report.
//
// Deduplication is enforced twice. The database carries UNIQUE constraints
// on the identity tuples and every create goes through
// INSERT ... ON CONFLICT DO NOTHING followed by a re-read, so concurrent
// creators converge on one row (compare-and-set, never check-then-insert).
// On top of that, a Batch keeps a per-ingestion pending cache so two frames
// discovered in the same pass that map to the same not-yet-read identity
// share one instance. Batches are scoped to one ingestion or retrace run and
// discarded afterwards; they are never shared across runs.
package store
