package found

import "context"

// Op is the body of a transactional unit of work. It runs against a live
// Transaction and returns whatever the caller wants back out of the
// transaction (spec §4.2).
type Op func(ctx context.Context, tx Transaction) (interface{}, error)

// Transactional runs op inside a transaction, following the engine's
// standard retry protocol: begin a fresh transaction, invoke op, and on
// normal completion call Commit; if op or Commit fails with a retryable
// error, ask the transaction whether to retry (OnError) and, if so,
// re-invoke op from scratch against the same (now-reset) transaction
// object. Non-retryable errors propagate immediately.
//
// scope is either a Database, in which case the retry loop above runs in
// full, or an already-live Transaction, in which case op is invoked
// exactly once with no outer retry loop — this is what lets a store
// method call another store's Transactional-wrapped helper from inside
// its own transaction without nesting retry loops (spec §4.2 point 6,
// "nested decorated entry points").
func Transactional(ctx context.Context, scope interface{}, op Op) (interface{}, error) {
	if tx, ok := scope.(Transaction); ok {
		return op(ctx, tx)
	}
	db, ok := scope.(Database)
	if !ok {
		return nil, &UsageError{Message: "Transactional: scope must be a Database or a Transaction"}
	}
	tx, err := db.CreateTransaction(false)
	if err != nil {
		return nil, err
	}
	for {
		result, opErr := op(ctx, tx)
		if opErr == nil {
			if commitErr := tx.Commit(ctx); commitErr == nil {
				return result, nil
			} else {
				opErr = commitErr
			}
		}
		if retryErr := tx.OnError(ctx, opErr); retryErr != nil {
			return nil, retryErr
		}
	}
}
