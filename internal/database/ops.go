package database

import (
	"context"

	"github.com/koustreak/waaa/internal/errs"
)

// dialect returns the statement dialect of a configured connection name.
func (m *Manager) dialect(name string) (Dialect, error) {
	cfg, ok := m.configs[name]
	if !ok {
		return 0, errs.Newf(errs.ErrKindConnectionUnknown, "connection %s is unknown", name)
	}
	return cfg.Dialect(), nil
}

// GetMany selects rows from table.
func (m *Manager) GetMany(ctx context.Context, name, table string, fields Fields, opts *SelectOptions) ([]Row, error) {
	d, err := m.dialect(name)
	if err != nil {
		return nil, err
	}
	stmt, err := BuildSelect(d, table, fields, opts)
	if err != nil {
		return nil, err
	}
	res, err := m.Query(ctx, name, stmt)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// GetOne is GetMany limited to a single row. Any limit in opts is replaced.
func (m *Manager) GetOne(ctx context.Context, name, table string, fields Fields, opts *SelectOptions) ([]Row, error) {
	one := SelectOptions{}
	if opts != nil {
		one = *opts
	}
	one.Limit = 1
	return m.GetMany(ctx, name, table, fields, &one)
}

// Add inserts one row built from fields.
func (m *Manager) Add(ctx context.Context, name, table string, fields map[string]any) (*Result, error) {
	d, err := m.dialect(name)
	if err != nil {
		return nil, err
	}
	stmt, args, err := BuildInsert(d, table, fields)
	if err != nil {
		return nil, err
	}
	return m.Query(ctx, name, stmt, args...)
}

// Update sets fields on the rows matching where. where must not be empty.
func (m *Manager) Update(ctx context.Context, name, table string, fields, where map[string]any) (*Result, error) {
	d, err := m.dialect(name)
	if err != nil {
		return nil, err
	}
	stmt, args, err := BuildUpdate(d, table, fields, where)
	if err != nil {
		return nil, err
	}
	return m.Query(ctx, name, stmt, args...)
}

// Delete removes the rows matching where. where must not be empty.
func (m *Manager) Delete(ctx context.Context, name, table string, where map[string]any) (*Result, error) {
	d, err := m.dialect(name)
	if err != nil {
		return nil, err
	}
	stmt, args, err := BuildDelete(d, table, where)
	if err != nil {
		return nil, err
	}
	return m.Query(ctx, name, stmt, args...)
}

// CallProcedureMany calls a stored procedure and returns its rows.
func (m *Manager) CallProcedureMany(ctx context.Context, name, procedure string, args ...any) ([]Row, error) {
	res, err := m.callProcedure(ctx, name, procedure, args)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// CallProcedureOne returns the first row of a procedure, or an empty Row.
func (m *Manager) CallProcedureOne(ctx context.Context, name, procedure string, args ...any) (Row, error) {
	res, err := m.callProcedure(ctx, name, procedure, args)
	if err != nil {
		return nil, err
	}
	return res.First(), nil
}

// CallProcedureNonQuery calls a procedure for its side effects and discards
// whatever it returns.
func (m *Manager) CallProcedureNonQuery(ctx context.Context, name, procedure string, args ...any) (*Result, error) {
	if _, err := m.callProcedure(ctx, name, procedure, args); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func (m *Manager) callProcedure(ctx context.Context, name, procedure string, args []any) (*Result, error) {
	d, err := m.dialect(name)
	if err != nil {
		return nil, err
	}
	stmt, err := BuildCall(d, procedure, args...)
	if err != nil {
		return nil, err
	}
	res, err := m.Query(ctx, name, stmt)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	return res, nil
}
