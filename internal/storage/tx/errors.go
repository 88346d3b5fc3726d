package tx

import "errors"

var (
	// ErrTxConflict is returned by Commit when another transaction
	// committed a write that overlaps this transaction's read or write
	// set after its snapshot was taken. The transaction is rolled back;
	// callers retry with a fresh transaction, typically via Retry.
	ErrTxConflict = errors.New("tx: transaction conflict")

	// ErrTxRolledBack is returned when an operation is attempted on a
	// transaction that was rolled back, either explicitly or by a
	// failed commit.
	ErrTxRolledBack = errors.New("tx: transaction already rolled back")

	// ErrTxCommitted is returned when an operation is attempted on a
	// transaction that already committed.
	ErrTxCommitted = errors.New("tx: transaction already committed")

	// ErrTxReadOnly is returned when a mutation is attempted on a
	// read-only transaction.
	ErrTxReadOnly = errors.New("tx: write on read-only transaction")

	// ErrCommitReadTx is returned by Commit on a read-only transaction.
	ErrCommitReadTx = errors.New("tx: cannot commit a read-only transaction")

	// ErrRollbackReadTx is returned by Rollback on a read-only
	// transaction. Read transactions are released with Close.
	ErrRollbackReadTx = errors.New("tx: cannot rollback a read-only transaction")

	// ErrTxTooLarge is returned when a mutation would push the pending
	// write set past the manager's size limit.
	ErrTxTooLarge = errors.New("tx: pending write set exceeds size limit")

	// ErrSequenceExhausted is returned when a single transaction issues
	// more mutations than its sequence counter can number.
	ErrSequenceExhausted = errors.New("tx: per-transaction sequence exhausted")

	// ErrQueryTxClosed is returned when a read is attempted on a closed
	// query transaction.
	ErrQueryTxClosed = errors.New("tx: query transaction closed")

	// ErrSnapshotForward is returned by ReadAsOf when the requested
	// snapshot lies above the transaction's current one. Snapshots only
	// narrow; begin a new transaction to observe later versions.
	ErrSnapshotForward = errors.New("tx: snapshot can only move backward")

	// ErrCommitFailed wraps a backend failure while applying a commit.
	ErrCommitFailed = errors.New("tx: commit failed")

	// ErrTxPanic wraps a panic recovered from a transaction closure run
	// by Retry or an engine helper. It is never retried.
	ErrTxPanic = errors.New("tx: transaction function panicked")

	// ErrManagerClosed is returned when a transaction is begun or
	// committed after the manager shut down.
	ErrManagerClosed = errors.New("tx: transaction manager closed")
)
