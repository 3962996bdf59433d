/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"fmt"
	"strings"
)

const (
	SelectStatement = `SELECT`
	InsertStatement = `INSERT INTO`
	UpdateStatement = `UPDATE`
	DeleteStatement = `DELETE FROM`
)

type Select struct {
	stmt    string
	columns []string
	from    []string
	where   string
	orderBy string
	limit   string
}

func NewSelect(columns ...string) *Select {
	return &Select{
		stmt:    SelectStatement,
		columns: columns,
	}
}

func (s *Select) From(tables ...string) *Select {
	s.from = tables
	return s
}

func (s *Select) Where(where string) *Select {
	s.where = where
	return s
}

func (s *Select) OrderBy(orderBy string) *Select {
	s.orderBy = orderBy
	return s
}

func (s *Select) Limit(limit string) *Select {
	s.limit = limit
	return s
}

func (s *Select) Compile() (string, error) {
	sb := new(strings.Builder)
	sb.WriteString(s.stmt)
	sb.WriteString(" ")
	if len(s.columns) > 0 {
		sb.WriteString(strings.Join(s.columns, ","))
		sb.WriteString(" ")
	}
	if len(s.from) > 0 {
		sb.WriteString("FROM ")
		sb.WriteString(strings.Join(s.from, " "))
	}
	if len(s.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(s.where)
	}
	if len(s.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(s.orderBy)
	}
	if len(s.limit) > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(s.limit)
	}
	return sb.String(), nil
}

type Insert struct {
	stmt  string
	rows  string
	table string
}

func NewInsertInto(table string) *Insert {
	return &Insert{
		stmt:  InsertStatement,
		table: table,
	}
}

func (i *Insert) Rows(rows string) *Insert {
	i.rows = rows
	return i
}

func (i *Insert) Compile() (string, error) {
	sb := new(strings.Builder)
	sb.WriteString(i.stmt)
	sb.WriteString(" ")
	sb.WriteString(i.table)
	sb.WriteString(" (")
	sb.WriteString(i.rows)
	sb.WriteString(") VALUES ($1")
	for n := 2; n <= len(strings.Split(i.rows, ",")); n++ {
		sb.WriteString(fmt.Sprintf(", $%d", n))
	}
	sb.WriteString(")")
	return sb.String(), nil
}

type Update struct {
	stmt  string
	table string
	rows  string
	where string
}

func NewUpdate(table string) *Update {
	return &Update{
		stmt:  UpdateStatement,
		table: table,
	}
}

func (u *Update) Set(rows string) *Update {
	u.rows = rows
	return u
}

func (u *Update) Where(where string) *Update {
	u.where = where
	return u
}

func (u *Update) Compile() (string, error) {
	counter := 1
	sb := new(strings.Builder)
	sb.WriteString(u.stmt)
	sb.WriteString(" ")
	sb.WriteString(u.table)
	sb.WriteString(" SET ")
	splitRows := strings.Split(u.rows, ",")
	for i, row := range splitRows {
		sb.WriteString(fmt.Sprintf("%s = $%d", strings.TrimSpace(row), counter))
		if i < len(splitRows)-1 {
			sb.WriteString(", ")
		}
		counter++
	}
	if len(u.where) > 0 {
		sb.WriteString(" WHERE ")
		if !strings.Contains(u.where, "$") {
			// bare column list, expand to equality conditions
			splitWhere := strings.Split(u.where, ",")
			for i, col := range splitWhere {
				sb.WriteString(fmt.Sprintf("%s = $%d", strings.TrimSpace(col), counter))
				if i < len(splitWhere)-1 {
					sb.WriteString(" AND ")
				}
				counter++
			}
		} else {
			sb.WriteString(u.where)
		}
	}
	return sb.String(), nil
}

type Delete struct {
	stmt  string
	table string
	where string
}

func NewDeleteFrom(table string) *Delete {
	return &Delete{
		stmt:  DeleteStatement,
		table: table,
	}
}

func (d *Delete) Where(where string) *Delete {
	d.where = where
	return d
}

func (d *Delete) Compile() (string, error) {
	sb := new(strings.Builder)
	sb.WriteString(d.stmt)
	sb.WriteString(" ")
	sb.WriteString(d.table)
	if len(d.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(d.where)
	}
	return sb.String(), nil
}

// inClause renders "col IN ($first, $first+1, ...)" for n values.
func inClause(col string, first, n int) string {
	sb := new(strings.Builder)
	sb.WriteString(col)
	sb.WriteString(" IN (")
	for i := range n {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("$%d", first+i))
	}
	sb.WriteString(")")
	return sb.String()
}
