package interview

import "context"

// insertOp attempts one compute-and-insert pass and returns the stored row.
type insertOp func(ctx context.Context) (*Message, error)

// conflictPredicate reports whether err is a write race worth one retry
// (sequence-number collision or duplicate-content uniqueness violation).
type conflictPredicate func(err error) bool

// resolveOp returns the best-effort authoritative row once retries are
// exhausted, typically the most recent message written by the winning racer.
type resolveOp func(ctx context.Context) (*Message, error)

// persistWithRetry runs op, retries exactly once when conflict(err) holds,
// and resolves a second conflict by accepting the concurrent winner's row
// instead of failing. Optimistic by design: the per-interview sequence
// counter is never pessimistically locked, so two writers may compute the
// same next value and the slower one lands here.
func persistWithRetry(ctx context.Context, op insertOp, conflict conflictPredicate, resolve resolveOp) (*Message, error) {
	msg, err := op(ctx)
	if err == nil || !conflict(err) {
		return msg, err
	}

	msg, err = op(ctx)
	if err == nil || !conflict(err) {
		return msg, err
	}

	return resolve(ctx)
}
