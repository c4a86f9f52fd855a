// Package store provides the SQLite-backed run journal.
//
// Every pipeline run can be appended to the journal: the module and its
// digest, the engine, codec and operation used, the input document, and
// either the output document with its digest or the error that stopped the
// run. The journal is what replay re-executes.
//
// # Ordering
//
// Runs are ordered by seq, a logical clock assigned inside the insert
// transaction, never by wall time. Every query orders by
// seq ASC, id ASC COLLATE BINARY so results are identical across reads.
//
// # Idempotency
//
// Run IDs are primary keys and inserts use ON CONFLICT(id) DO NOTHING, so
// writing the same run twice keeps the first copy and its seq.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
