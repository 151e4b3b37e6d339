package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// Stores groups the repositories bound to one transaction.
type Stores struct {
	Tags     TagRepo
	Products ProductRepo
	Ledger   LedgerRepo
}

// forUpdate is appended to single-row reads in writable stores so the
// read-then-decide step of a transition holds the row.
const forUpdate = ` FOR UPDATE`

// NewStores binds every repository to the same connection or transaction.
func NewStores(db db) Stores {
	return Stores{
		Tags:     NewTagRepo(db),
		Products: NewProductRepo(db),
		Ledger:   NewLedgerRepo(db),
	}
}

// NewReadOnlyStores is NewStores without row locks, for read-only
// transactions where SELECT ... FOR UPDATE is not allowed.
func NewReadOnlyStores(db db) Stores {
	return Stores{
		Tags:     &pgTagRepo{db: db},
		Products: &pgProductRepo{db: db},
		Ledger:   NewLedgerRepo(db),
	}
}

// TxRunner runs custody operations in serializable transactions and retries
// them when Postgres aborts one with a serialization failure or deadlock.
type TxRunner struct {
	pool       *pgxpool.Pool
	maxRetries uint64
	base       time.Duration
	onRetry    func(err error)
}

// TxOption configures a TxRunner.
type TxOption func(*TxRunner)

// WithMaxRetries caps how many times a failed transaction is re-run.
func WithMaxRetries(n uint64) TxOption {
	return func(r *TxRunner) { r.maxRetries = n }
}

// WithBackoff sets the first delay of the exponential retry backoff.
func WithBackoff(base time.Duration) TxOption {
	return func(r *TxRunner) { r.base = base }
}

// WithRetryHook registers fn to be called before each retry.
func WithRetryHook(fn func(err error)) TxOption {
	return func(r *TxRunner) { r.onRetry = fn }
}

// NewTxRunner returns a TxRunner over pool. Defaults: 5 retries, 10ms base.
func NewTxRunner(pool *pgxpool.Pool, opts ...TxOption) *TxRunner {
	r := &TxRunner{pool: pool, maxRetries: 5, base: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InTx runs fn inside a serializable transaction. The transaction commits
// only if fn returns nil; any error rolls back every write fn made. Errors
// returned by fn come back unwrapped.
func (r *TxRunner) InTx(ctx context.Context, fn func(Stores) error) error {
	return r.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, NewStores, fn)
}

// ReadOnly runs fn inside a read-only repeatable-read transaction so that
// multi-query reads see one snapshot.
func (r *TxRunner) ReadOnly(ctx context.Context, fn func(Stores) error) error {
	return r.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, NewReadOnlyStores, fn)
}

func (r *TxRunner) run(ctx context.Context, opts pgx.TxOptions, bind func(db) Stores, fn func(Stores) error) error {
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.base))

	var last error
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if last != nil && r.onRetry != nil {
			r.onRetry(last)
		}

		err := pgx.BeginTxFunc(ctx, r.pool, opts, func(tx pgx.Tx) error {
			return fn(bind(tx))
		})
		if IsRetryable(err) {
			last = err
			return retry.RetryableError(err)
		}
		return err
	})
}
