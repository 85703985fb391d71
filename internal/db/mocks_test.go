package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"valor/internal/types"
)

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// mockRows replays rows through scanFn, one call per row.
type mockRows struct {
	n      int
	idx    int
	scanFn func(i int, dest ...any) error
	errVal error
	closed bool
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx <= r.n
}

func (r *mockRows) Scan(dest ...any) error                       { return r.scanFn(r.idx-1, dest...) }
func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// orderScan fills the orderColumns destinations in order.
func orderScan(id, number string, status string, keyID *string) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*string) = number
		*dest[2].(*string) = "buyer@example.com"
		*dest[3].(*string) = "prod-1"
		*dest[4].(*string) = "var-1"
		*dest[5].(**string) = keyID
		*dest[6].(*int64) = 1999
		*dest[7].(*string) = "usd"
		*dest[8].(*string) = status
		*dest[9].(**string) = nil
		*dest[10].(**string) = nil
		*dest[11].(**string) = nil
		*dest[12].(*types.Metadata) = types.Metadata{"coupon_id": "c-1"}
		*dest[13].(*time.Time) = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		*dest[14].(**time.Time) = nil
		return nil
	}
}
