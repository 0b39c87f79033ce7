// Package database owns the single SQLite file every WikiSeed process shares.
//
// It opens the connection pool with per-connection pragmas (WAL, foreign keys,
// busy timeout, immediate transactions), installs the embedded schema, and
// exposes busy-retrying Exec/Query/WithTx helpers plus the system_state
// key/value table. Higher layers (queue, grouping, admission) hold a *DB and
// never open the file themselves.
package database
