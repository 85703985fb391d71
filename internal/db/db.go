// Package db provides the PostgreSQL repositories for the storefront. Every
// repository accepts a DBTX, which both *pgxpool.Pool and pgx.Tx satisfy, so
// the same code runs inside or outside a transaction.
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"valor/internal/config"
	"valor/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

const uniqueViolation = "23505"

// oneKeyPerOrderIndex is the partial unique index that admits one key per order.
const oneKeyPerOrderIndex = "license_keys_one_per_order"

// NewPool opens a connection pool tuned from config and verifies it with a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// TxManager implements types.TransactionManager on top of a pool.
type TxManager struct {
	db     TxBeginner
	prefix string
	logger *slog.Logger
}

// NewTxManager creates a TxManager. orderPrefix is passed to the order
// repository created for each transaction.
func NewTxManager(db TxBeginner, orderPrefix string, logger *slog.Logger) *TxManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TxManager{db: db, prefix: orderPrefix, logger: logger}
}

type txRepos struct {
	orders  *OrderRepo
	keys    *LicenseKeyRepo
	coupons *CouponRepo
}

func (r *txRepos) Orders() types.OrderRepository           { return r.orders }
func (r *txRepos) LicenseKeys() types.LicenseKeyRepository { return r.keys }
func (r *txRepos) Coupons() types.CouponRepository         { return r.coupons }

// RunInTx begins a transaction, runs fn with repositories bound to it, and
// commits when fn returns nil. Any error rolls the transaction back.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.TxRepos) error) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			m.logger.WarnContext(ctx, "transaction rollback failed", "error", rbErr)
		}
	}()

	repos := &txRepos{
		orders:  NewOrderRepo(tx, m.prefix, m.logger),
		keys:    NewLicenseKeyRepo(tx),
		coupons: NewCouponRepo(tx, m.logger),
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// violatedConstraint returns the constraint named by a unique violation.
func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
