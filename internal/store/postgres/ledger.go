package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger implements domain.Ledger over one PostgreSQL transaction per call.
// Atomic takes row locks (SELECT ... FOR UPDATE) on every market it reads, so
// executions against the same market serialize while unrelated markets run
// in parallel. Nonces advance with a compare-and-set UPDATE.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger backed by the given pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Atomic runs fn in a read-write transaction and commits when it returns nil.
func (l *Ledger) Atomic(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	return l.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, true, fn)
}

// View runs fn in a read-only transaction.
func (l *Ledger) View(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	return l.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, false, fn)
}

func (l *Ledger) run(ctx context.Context, opts pgx.TxOptions, lock bool, fn func(tx domain.LedgerTx) error) error {
	pgtx, err := l.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(&ledgerTx{q: pgtx, lock: lock}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// ListEventsBetween implements domain.EventArchiveStore.
func (l *Ledger) ListEventsBetween(ctx context.Context, since, until time.Time) ([]domain.Event, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+eventCols+` FROM events WHERE created_at >= $1 AND created_at < $2 ORDER BY seq`,
		since, until)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events between: %w", err)
	}
	return scanEvents(rows)
}

// ledgerTx implements domain.LedgerTx on a single pgx transaction.
type ledgerTx struct {
	q    querier
	lock bool
}

// --- amount encoding ---

// NUMERIC(78,0) holds any uint256. Values cross the wire as decimal text.

func numeric(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func parseNumeric(s string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: bad numeric %q", s)
	}
	return x, nil
}

// numericScanner scans a ::text column into a *big.Int destination.
type numericScanner struct {
	dst **big.Int
}

func (n numericScanner) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		*n.dst = new(big.Int)
		return nil
	default:
		return fmt.Errorf("postgres: cannot scan %T into big.Int", src)
	}
	x, err := parseNumeric(s)
	if err != nil {
		return err
	}
	*n.dst = x
	return nil
}

func num(dst **big.Int) numericScanner { return numericScanner{dst: dst} }

// addressScanner scans a TEXT column into a common.Address.
type addressScanner struct {
	dst *common.Address
}

func (a addressScanner) Scan(src any) error {
	s, ok := src.(string)
	if !ok {
		return fmt.Errorf("postgres: cannot scan %T into address", src)
	}
	if !common.IsHexAddress(s) {
		return fmt.Errorf("postgres: bad address %q", s)
	}
	*a.dst = common.HexToAddress(s)
	return nil
}

func addr(dst *common.Address) addressScanner { return addressScanner{dst: dst} }

// isUniqueViolation reports a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// appendListOpts adds time filters, ordering and pagination to query.
func appendListOpts(query string, args []any, opts domain.ListOpts, timeCol, orderBy string) (string, []any) {
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND %s >= $%d", timeCol, len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND %s < $%d", timeCol, len(args))
	}
	query += " ORDER BY " + orderBy
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

var (
	_ domain.Ledger            = (*Ledger)(nil)
	_ domain.EventArchiveStore = (*Ledger)(nil)
	_ domain.LedgerTx          = (*ledgerTx)(nil)
)
