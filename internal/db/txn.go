package db

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/mongo"
)

// txnSupport caches whether the connected deployment supports multi-document
// transactions: 0 unknown, 1 supported, -1 unsupported (standalone mongod).
var txnSupport atomic.Int32

// WithTxn runs fn inside a MongoDB multi-document transaction.
//
// All ledger mutations go through here so that entry writes, the derived
// invoice total recompute and the payable mirror move as one unit. On a
// standalone mongod (local dev, tests) transactions are not available; the
// helper detects that once and thereafter runs fn without a session — the
// per-invoice order_version CAS and conditional updates still guard the
// ordering invariants in that mode.
func WithTxn(ctx context.Context, db *mongo.Database, fn func(ctx context.Context) error) error {
	if txnSupport.Load() < 0 {
		return fn(ctx)
	}

	session, err := db.Client().StartSession()
	if err != nil {
		if isTxnUnsupported(err) {
			txnSupport.Store(-1)
			return fn(ctx)
		}
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && isTxnUnsupported(err) {
		txnSupport.Store(-1)
		return fn(ctx)
	}
	if err == nil {
		txnSupport.Store(1)
	}
	return err
}

// isTxnUnsupported reports whether err means the deployment cannot do
// transactions at all (as opposed to a failed transaction).
func isTxnUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 20 { // IllegalOperation
		return true
	}
	return strings.Contains(err.Error(), "Transaction numbers are only allowed")
}
