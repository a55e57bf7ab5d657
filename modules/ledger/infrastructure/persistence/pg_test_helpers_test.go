package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type beginnerFunc func(ctx context.Context) (pgx.Tx, error)

func (f beginnerFunc) Begin(ctx context.Context) (pgx.Tx, error) { return f(ctx) }

type stubTx struct {
	execErr    error
	execErrAt  int
	execN      int
	execSQLs   []string
	queryErr   error
	queryErrAt int
	queryN     int
	commitErr  error
	rowErr     error
	row2Err    error

	rows  pgx.Rows
	rows2 pgx.Rows
	row   pgx.Row
	row2  pgx.Row
}

func (t *stubTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *stubTx) Commit(context.Context) error              { return t.commitErr }
func (t *stubTx) Rollback(context.Context) error            { return nil }
func (t *stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *stubTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *stubTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *stubTx) Conn() *pgx.Conn { return nil }

func (t *stubTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execSQLs = append(t.execSQLs, sql)
	t.execN++
	if t.execErr != nil {
		at := t.execErrAt
		if at == 0 {
			at = 1
		}
		if t.execN == at {
			return pgconn.CommandTag{}, t.execErr
		}
	}
	return pgconn.CommandTag{}, nil
}

func (t *stubTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	t.queryN++
	if t.queryErr != nil {
		at := t.queryErrAt
		if at == 0 {
			at = 1
		}
		if t.queryN == at {
			return nil, t.queryErr
		}
	}
	if t.queryN == 2 && t.rows2 != nil {
		return t.rows2, nil
	}
	if t.rows != nil {
		return t.rows, nil
	}
	return &tableRows{}, nil
}

func (t *stubTx) QueryRow(context.Context, string, ...any) pgx.Row {
	if t.rowErr != nil {
		err := t.rowErr
		t.rowErr = nil
		return &stubRow{err: err}
	}
	if t.row != nil {
		r := t.row
		t.row = nil
		return r
	}
	if t.row2Err != nil {
		return &stubRow{err: t.row2Err}
	}
	if t.row2 != nil {
		r := t.row2
		t.row2 = nil
		return r
	}
	return &stubRow{}
}

type tableRows struct {
	idx  int
	rows [][]any
	err  error
}

func (r *tableRows) Close()                                      {}
func (r *tableRows) Err() error                                  { return r.err }
func (r *tableRows) CommandTag() pgconn.CommandTag               { return pgconn.CommandTag{} }
func (r *tableRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *tableRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}
func (r *tableRows) Scan(dest ...any) error {
	return scanVals(r.rows[r.idx-1], dest)
}
func (r *tableRows) Values() ([]any, error) { return nil, nil }
func (r *tableRows) RawValues() [][]byte    { return nil }
func (r *tableRows) Conn() *pgx.Conn        { return nil }

type scanErrRows struct {
	next bool
}

func (r *scanErrRows) Close()                                      {}
func (r *scanErrRows) Err() error                                  { return nil }
func (r *scanErrRows) CommandTag() pgconn.CommandTag               { return pgconn.CommandTag{} }
func (r *scanErrRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *scanErrRows) Next() bool {
	if r.next {
		return false
	}
	r.next = true
	return true
}
func (r *scanErrRows) Scan(...any) error     { return errors.New("scan fail") }
func (r *scanErrRows) Values() ([]any, error) { return nil, nil }
func (r *scanErrRows) RawValues() [][]byte   { return nil }
func (r *scanErrRows) Conn() *pgx.Conn       { return nil }

type stubRow struct {
	vals []any
	err  error
}

func (r *stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanVals(r.vals, dest)
}

func scanVals(vals []any, dest []any) error {
	for i := range dest {
		if i >= len(vals) || vals[i] == nil {
			continue
		}
		switch d := dest[i].(type) {
		case *string:
			*d = vals[i].(string)
		case *bool:
			*d = vals[i].(bool)
		case *int64:
			*d = vals[i].(int64)
		case *int:
			*d = vals[i].(int)
		case *time.Time:
			*d = vals[i].(time.Time)
		case *[]byte:
			switch v := vals[i].(type) {
			case []byte:
				*d = append([]byte(nil), v...)
			case string:
				*d = []byte(v)
			}
		default:
			return errors.New("unsupported scan type")
		}
	}
	return nil
}
