package testkit

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Row is a pgx.Row backed by literal values (or a fixed error).
type Row struct {
	vals []any
	err  error
}

func valueRow(vals ...any) Row { return Row{vals: vals} }

func errRow(err error) Row { return Row{err: err} }

func noRow() Row { return Row{err: pgx.ErrNoRows} }

func (r Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("testkit: scan expects %d destinations, got %d", len(r.vals), len(dest))
	}
	for i, v := range r.vals {
		if err := assign(dest[i], v); err != nil {
			return fmt.Errorf("testkit: column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, v any) error {
	switch d := dest.(type) {
	case *string:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		*d = s
	case *int:
		switch n := v.(type) {
		case int:
			*d = n
		case int64:
			*d = int(n)
		default:
			return fmt.Errorf("expected int, got %T", v)
		}
	case *int64:
		switch n := v.(type) {
		case int64:
			*d = n
		case int:
			*d = int64(n)
		default:
			return fmt.Errorf("expected int64, got %T", v)
		}
	case *bool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		*d = b
	case *time.Time:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", v)
		}
		*d = t
	case **time.Time:
		switch t := v.(type) {
		case nil:
			*d = nil
		case *time.Time:
			*d = t
		case time.Time:
			tt := t
			*d = &tt
		default:
			return fmt.Errorf("expected *time.Time, got %T", v)
		}
	case *[]string:
		switch s := v.(type) {
		case nil:
			*d = nil
		case []string:
			*d = s
		default:
			return fmt.Errorf("expected []string, got %T", v)
		}
	case *[]byte:
		switch b := v.(type) {
		case nil:
			*d = nil
		case []byte:
			*d = b
		default:
			return fmt.Errorf("expected []byte, got %T", v)
		}
	default:
		return fmt.Errorf("unsupported destination %T", dest)
	}
	return nil
}

// Rows is a pgx.Rows over a fixed result set.
type Rows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *Rows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	return valueRow(r.rows[r.idx-1]...).Scan(dest...)
}

func (r *Rows) Close()                                       {}
func (r *Rows) Err() error                                   { return r.err }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) Values() ([]any, error) {
	return nil, fmt.Errorf("testkit: Values not supported")
}
func (r *Rows) RawValues() [][]byte { return nil }
func (r *Rows) Conn() *pgx.Conn     { return nil }

var _ pgx.Row = Row{}
var _ pgx.Rows = (*Rows)(nil)
