package gateway

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type statement struct {
	sql  string
	args []any
}

type selectOptions struct {
	limit     int
	forUpdate bool
}

type builder struct {
	sb   strings.Builder
	args []any
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) where(preds []predicate) {
	for i, p := range preds {
		if i == 0 {
			b.write(" WHERE ")
		} else {
			b.write(" AND ")
		}
		if p.value == nil {
			b.write(p.column, " IS NULL")
			continue
		}
		b.write(p.column, " = ", b.arg(p.value))
	}
}

func (b *builder) statement() statement {
	return statement{sql: b.sb.String(), args: b.args}
}

func unknownColumn(col string) error {
	return fmt.Errorf("%w: %q", ErrUnknownColumn, col)
}

func compileSelect(scope Scope, filter Filter, opts selectOptions) (statement, error) {
	spec, ok := entitySpecs[scope.Entity]
	if !ok {
		return statement{}, ErrUnknownEntity
	}
	preds, err := scope.constrain(spec, filter)
	if err != nil {
		return statement{}, err
	}
	var b builder
	b.write("SELECT ", strings.Join(spec.columns, ", "), " FROM ", spec.table)
	b.where(preds)
	if spec.orderBy != "" && !opts.forUpdate {
		b.write(" ORDER BY ", spec.orderBy)
	}
	if opts.limit > 0 {
		b.write(" LIMIT ", strconv.Itoa(opts.limit))
	}
	if opts.forUpdate {
		b.write(" FOR UPDATE")
	}
	return b.statement(), nil
}

func compileInsert(scope Scope, payload Row) (statement, error) {
	spec, ok := entitySpecs[scope.Entity]
	if !ok {
		return statement{}, ErrUnknownEntity
	}
	if len(payload) == 0 {
		return statement{}, ErrEmptyPayload
	}
	for col := range payload {
		if !spec.hasColumn(col) {
			return statement{}, unknownColumn(col)
		}
	}
	if rule, ok := scope.writeRule(OpCreate); ok {
		if err := rule.check(payload); err != nil {
			return statement{}, err
		}
	}
	row := scope.stamp(spec, payload)
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var b builder
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		placeholders[i] = b.arg(row[col])
	}
	b.write("INSERT INTO ", spec.table, " (", strings.Join(cols, ", "), ") VALUES (",
		strings.Join(placeholders, ", "), ") RETURNING ", strings.Join(spec.columns, ", "))
	return b.statement(), nil
}

func compileUpdate(scope Scope, filter Filter, changes Row) (statement, error) {
	spec, ok := entitySpecs[scope.Entity]
	if !ok {
		return statement{}, ErrUnknownEntity
	}
	if len(filter) == 0 {
		return statement{}, ErrEmptyFilter
	}
	if len(changes) == 0 {
		return statement{}, ErrEmptyPayload
	}
	immutable := scope.immutable(spec)
	cols := make([]string, 0, len(changes))
	for col := range changes {
		if !spec.hasColumn(col) {
			return statement{}, unknownColumn(col)
		}
		if immutable[col] {
			return statement{}, fmt.Errorf("%w: %q", ErrImmutableColumn, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	if rule, ok := scope.writeRule(OpUpdate); ok {
		if err := rule.check(changes); err != nil {
			return statement{}, err
		}
	}
	preds, err := scope.constrain(spec, filter)
	if err != nil {
		return statement{}, err
	}

	var b builder
	b.write("UPDATE ", spec.table, " SET ")
	for i, col := range cols {
		if i > 0 {
			b.write(", ")
		}
		b.write(col, " = ", b.arg(changes[col]))
	}
	b.where(preds)
	return b.statement(), nil
}

func compileDelete(scope Scope, filter Filter) (statement, error) {
	spec, ok := entitySpecs[scope.Entity]
	if !ok {
		return statement{}, ErrUnknownEntity
	}
	if len(filter) == 0 {
		return statement{}, ErrEmptyFilter
	}
	preds, err := scope.constrain(spec, filter)
	if err != nil {
		return statement{}, err
	}
	var b builder
	b.write("DELETE FROM ", spec.table)
	b.where(preds)
	return b.statement(), nil
}
