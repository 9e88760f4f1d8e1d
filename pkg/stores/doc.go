// Package stores provides the apply-history ledger for wareform.
//
// Every apply is recorded in a SQLite database (modernc.org/sqlite, WAL
// journal) whose schema is managed by embedded golang-migrate migrations:
//
//   - runs: one row per apply with account, state path, status, the state
//     hash before and after, and the rendered statements
//   - run_actions: the applied plan, one row per action in plan order
//   - audit: free-form audit entries, optionally tied to a run
//
// The ledger is informational. The state file remains authoritative and a
// ledger failure never rolls back a state write.
package stores
