package dbcatalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/inedumozey/morm/dbsession"
)

const schemaName = "public"

// Read builds a full live-catalog Schema snapshot, the way ptah's
// dbschema/postgres.Reader.ReadSchema orchestrates readTables,
// readEnums, readIndexes, readConstraints and readExtensions into one
// DBSchema value.
func Read(ctx context.Context, sess dbsession.Session) (*Schema, error) {
	tables, err := readTables(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("dbcatalog: read tables: %w", err)
	}

	enums, err := readEnums(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("dbcatalog: read enums: %w", err)
	}

	indexes, err := readIndexes(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("dbcatalog: read indexes: %w", err)
	}

	constraints, err := readConstraints(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("dbcatalog: read constraints: %w", err)
	}

	extensions, err := readExtensions(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("dbcatalog: read extensions: %w", err)
	}

	for _, c := range constraints {
		t, ok := tables[strings.ToLower(c.TableName)]
		if !ok {
			continue
		}
		for i := range t.Columns {
			if !equalFold(t.Columns[i].Name, c.ColumnName) {
				continue
			}
			switch c.Type {
			case "PRIMARY KEY":
				t.Columns[i].IsPrimaryKey = true
			case "UNIQUE":
				t.Columns[i].IsUnique = true
			}
		}
		tables[strings.ToLower(c.TableName)] = t
	}

	return &Schema{Tables: tables, Enums: enums, Indexes: indexes, Constraints: constraints, Extensions: extensions}, nil
}

// readTables mirrors ptah's dbschema/postgres.Reader.readTables: the
// schema's base tables from information_schema.tables, excluding
// this engine's own bookkeeping (there is none — spec §6 "Persisted
// state: None").
func readTables(ctx context.Context, sess dbsession.Session) (map[string]Table, error) {
	rows, err := sess.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := map[string]Table{}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, name := range names {
		cols, err := readColumns(ctx, sess, name)
		if err != nil {
			return nil, err
		}
		tables[strings.ToLower(name)] = Table{Name: name, Columns: cols}
	}

	return tables, nil
}

func readColumns(ctx context.Context, sess dbsession.Session, table string) ([]Column, error) {
	rows, err := sess.Query(ctx, `
		SELECT column_name, data_type, udt_name, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var isNullable string
		if err := rows.Scan(&c.Name, &c.DataType, &c.UDTName, &isNullable, &c.ColumnDefault); err != nil {
			return nil, err
		}
		c.IsNullable = isNullable == "YES"
		if c.ColumnDefault != nil {
			c.IsAutoIncrement = strings.Contains(*c.ColumnDefault, "nextval(") && strings.Contains(*c.ColumnDefault, "_seq")
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// readEnums mirrors ptah's join of pg_type/pg_enum/pg_namespace ordered
// by enumsortorder.
func readEnums(ctx context.Context, sess dbsession.Session) (map[string]Enum, error) {
	rows, err := sess.Query(ctx, `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1
		ORDER BY t.typname, e.enumsortorder`, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	enums := map[string]Enum{}
	for rows.Next() {
		var typname, label string
		if err := rows.Scan(&typname, &label); err != nil {
			return nil, err
		}
		key := strings.ToUpper(typname)
		e := enums[key]
		e.Name = strings.ToUpper(typname)
		e.Values = append(e.Values, label)
		enums[key] = e
	}
	return enums, rows.Err()
}

func readIndexes(ctx context.Context, sess dbsession.Session) ([]Index, error) {
	rows, err := sess.Query(ctx, `
		SELECT i.relname, t.relname, ix.indisunique, ix.indisprimary,
		       array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum))
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1
		GROUP BY i.relname, t.relname, ix.indisunique, ix.indisprimary`, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []Index
	for rows.Next() {
		var idx Index
		if err := rows.Scan(&idx.Name, &idx.TableName, &idx.IsUnique, &idx.IsPrimary, &idx.Columns); err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func readConstraints(ctx context.Context, sess dbsession.Session) ([]Constraint, error) {
	rows, err := sess.Query(ctx, `
		SELECT con.conname, cl.relname, con.contype,
		       pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class cl ON cl.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		WHERE n.nspname = $1`, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var constraints []Constraint
	for rows.Next() {
		var name, table, contype, def string
		if err := rows.Scan(&name, &table, &contype, &def); err != nil {
			return nil, err
		}
		constraints = append(constraints, parseConstraintDef(name, table, contype, def))
	}
	return constraints, rows.Err()
}

// parseConstraintDef translates a single pg_get_constraintdef() output
// string and contype code into a Constraint. This is a deliberately
// small parser (no general SQL grammar needed) since the definition
// strings PostgreSQL emits for PK/UNIQUE/FK/CHECK follow a fixed shape.
func parseConstraintDef(name, table, contype, def string) Constraint {
	c := Constraint{Name: name, TableName: table}
	switch contype {
	case "p":
		c.Type = "PRIMARY KEY"
		c.ColumnName = columnInParens(def)
	case "u":
		c.Type = "UNIQUE"
		c.ColumnName = columnInParens(def)
	case "f":
		c.Type = "FOREIGN KEY"
		c.ColumnName = columnInParens(def)
		if refTable, refCol, ok := parseForeignKeyDef(def); ok {
			c.ForeignTable = &refTable
			c.ForeignColumn = &refCol
		}
		if idx := strings.Index(def, "ON DELETE "); idx >= 0 {
			rule := strings.SplitN(def[idx+len("ON DELETE "):], " ON UPDATE", 2)[0]
			rule = strings.TrimSpace(rule)
			c.OnDelete = &rule
		}
		if idx := strings.Index(def, "ON UPDATE "); idx >= 0 {
			rule := strings.TrimSpace(def[idx+len("ON UPDATE "):])
			c.OnUpdate = &rule
		}
	case "c":
		c.Type = "CHECK"
		clause := def
		if i := strings.Index(def, "CHECK ("); i >= 0 {
			clause = strings.TrimSuffix(def[i+len("CHECK ("):], ")")
		}
		c.CheckClause = &clause
	}
	return c
}

func columnInParens(def string) string {
	start := strings.Index(def, "(")
	end := strings.Index(def, ")")
	if start < 0 || end < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(strings.Split(def[start+1:end], ",")[0])
}

func parseForeignKeyDef(def string) (table, column string, ok bool) {
	idx := strings.Index(def, "REFERENCES ")
	if idx < 0 {
		return "", "", false
	}
	rest := def[idx+len("REFERENCES "):]
	parenStart := strings.Index(rest, "(")
	parenEnd := strings.Index(rest, ")")
	if parenStart < 0 || parenEnd < 0 {
		return "", "", false
	}
	return strings.TrimSpace(rest[:parenStart]), strings.TrimSpace(rest[parenStart+1 : parenEnd]), true
}

func readExtensions(ctx context.Context, sess dbsession.Session) (map[string]bool, error) {
	rows, err := sess.Query(ctx, `SELECT extname FROM pg_extension`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exts := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		exts[name] = true
	}
	return exts, rows.Err()
}
