package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"docmodel/internal/value"
)

// sqlConnector is the shared implementation for MySQL, Postgres, and SQLite.
type sqlConnector struct {
	dialect dialect
	db      *sql.DB

	mu         sync.Mutex
	activeRows *sql.Rows
	lastAccess time.Time
	columns    []string
	fetched    int
}

func newSQLConnector(d dialect, dsn string) (*sqlConnector, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{dialect: d, db: db}, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

// isReadQuery detects if a query is a read (SELECT, WITH, SHOW, DESCRIBE, EXPLAIN, PRAGMA).
func isReadQuery(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA"} {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return false
}

func (c *sqlConnector) TableQuery(table string) string {
	return "SELECT * FROM " + c.dialect.quote(table)
}

func (c *sqlConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeCursorLocked()

	if fetchSize <= 0 {
		fetchSize = 50
	}
	if !isReadQuery(query) {
		return c.execWrite(ctx, query)
	}
	return c.execRead(ctx, query, fetchSize)
}

func (c *sqlConnector) execWrite(ctx context.Context, query string) (*QueryPage, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := c.db.ExecContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	affected, _ := result.RowsAffected()
	return &QueryPage{IsWrite: true, AffectedRows: int(affected)}, nil
}

// execRead opens a cursor that outlives this call, so it is bound to ctx
// only and not to a local timeout.
func (c *sqlConnector) execRead(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("columns: %w", err)
	}

	c.activeRows = rows
	c.columns = cols
	c.fetched = 0
	c.lastAccess = time.Now()

	return c.fetchBatchLocked(fetchSize)
}

func (c *sqlConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeRows == nil {
		return nil, fmt.Errorf("no active cursor, execute a query first")
	}
	if fetchSize <= 0 {
		fetchSize = 50
	}
	c.lastAccess = time.Now()
	return c.fetchBatchLocked(fetchSize)
}

// fetchBatchLocked reads up to fetchSize rows from the active cursor.
// Must be called while holding c.mu.
func (c *sqlConnector) fetchBatchLocked(fetchSize int) (*QueryPage, error) {
	var resultRows [][]value.Value
	numCols := len(c.columns)

	for i := 0; i < fetchSize; i++ {
		if !c.activeRows.Next() {
			break
		}
		raw := make([]any, numCols)
		ptrs := make([]any, numCols)
		for j := range raw {
			ptrs[j] = &raw[j]
		}
		if err := c.activeRows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]value.Value, numCols)
		for j, v := range raw {
			row[j] = value.FromAny(v)
		}
		resultRows = append(resultRows, row)
	}

	c.fetched += len(resultRows)

	if err := c.activeRows.Err(); err != nil {
		c.closeCursorLocked()
		return nil, fmt.Errorf("iterate: %w", err)
	}

	hasMore := len(resultRows) == fetchSize
	if !hasMore {
		c.closeCursorLocked()
	}

	return &QueryPage{
		Columns:      c.columns,
		Rows:         resultRows,
		TotalFetched: c.fetched,
		HasMore:      hasMore,
	}, nil
}

// ── Write ──────────────────────────────────────────────────

func (c *sqlConnector) WriteTable(ctx context.Context, t *Table, overwrite bool) (int, error) {
	if len(t.Columns) == 0 {
		return 0, fmt.Errorf("write %s: table has no columns", t.Name)
	}
	d := c.dialect
	types := make([]string, len(t.Columns))
	defs := make([]string, len(t.Columns))
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		types[i] = d.columnType(col, t.Rows, i)
		names[i] = d.quote(col.Name)
		defs[i] = names[i] + " " + types[i]
	}
	table := d.quote(t.Name)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if overwrite {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return 0, fmt.Errorf("drop %s: %w", t.Name, err)
		}
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return 0, fmt.Errorf("create %s: %w", t.Name, err)
	}

	batch := d.maxParams / len(t.Columns)
	if batch > 500 {
		batch = 500
	}
	if batch < 1 {
		return 0, fmt.Errorf("write %s: too many columns (%d)", t.Name, len(t.Columns))
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(names, ", "))

	written := 0
	for start := 0; start < len(t.Rows); start += batch {
		end := min(start+batch, len(t.Rows))
		var sb strings.Builder
		sb.WriteString(prefix)
		args := make([]any, 0, (end-start)*len(t.Columns))
		for i, row := range t.Rows[start:end] {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			for j := range t.Columns {
				if j > 0 {
					sb.WriteString(", ")
				}
				args = append(args, bindValue(row[j], d.isTextual(types[j])))
				sb.WriteString(d.placeholder(len(args)))
			}
			sb.WriteByte(')')
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return written, fmt.Errorf("insert into %s: %w", t.Name, err)
		}
		written += end - start
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	zap.L().Debug("table written",
		zap.String("driver", d.driver),
		zap.String("table", t.Name),
		zap.Int("rows", written),
		zap.Bool("overwrite", overwrite))
	return written, nil
}

// ── Introspection ──────────────────────────────────────────

func (c *sqlConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if c.dialect.driver == dialectSQLite.driver {
		return c.introspectSQLite(ctx)
	}
	return c.introspectInfoSchema(ctx)
}

// introspectInfoSchema works for MySQL and Postgres via INFORMATION_SCHEMA.
func (c *sqlConnector) introspectInfoSchema(ctx context.Context) (*SchemaInfo, error) {
	scope := "TABLE_SCHEMA = DATABASE()"
	if c.dialect.driver == dialectPostgres.driver {
		scope = "TABLE_SCHEMA = CURRENT_SCHEMA()"
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE `+scope+` ORDER BY TABLE_NAME`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tableNames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		tableNames = append(tableNames, name)
	}

	schema := &SchemaInfo{}
	for _, tbl := range tableNames {
		colRows, err := c.db.QueryContext(ctx,
			`SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
			 WHERE `+scope+` AND TABLE_NAME = `+c.dialect.placeholder(1)+` ORDER BY ORDINAL_POSITION`, tbl)
		if err != nil {
			schema.Tables = append(schema.Tables, TableInfo{Name: tbl})
			continue
		}

		var cols []ColumnInfo
		for colRows.Next() {
			var ci ColumnInfo
			if err := colRows.Scan(&ci.Name, &ci.Type); err != nil {
				continue
			}
			cols = append(cols, ci)
		}
		colRows.Close()

		schema.Tables = append(schema.Tables, TableInfo{Name: tbl, Columns: cols})
	}

	return schema, nil
}

// introspectSQLite uses sqlite_master + PRAGMA table_info.
func (c *sqlConnector) introspectSQLite(ctx context.Context) (*SchemaInfo, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tableNames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		tableNames = append(tableNames, name)
	}
	rows.Close()

	schema := &SchemaInfo{}
	for _, tbl := range tableNames {
		pragmaRows, err := c.db.QueryContext(ctx, "PRAGMA table_info("+c.dialect.quote(tbl)+")")
		if err != nil {
			schema.Tables = append(schema.Tables, TableInfo{Name: tbl})
			continue
		}

		var cols []ColumnInfo
		for pragmaRows.Next() {
			var cid int
			var name, colType string
			var notNull, pk int
			var dfltValue sql.NullString
			if err := pragmaRows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
				continue
			}
			cols = append(cols, ColumnInfo{Name: name, Type: colType})
		}
		pragmaRows.Close()

		schema.Tables = append(schema.Tables, TableInfo{Name: tbl, Columns: cols})
	}

	return schema, nil
}

func (c *sqlConnector) Close() error {
	c.mu.Lock()
	c.closeCursorLocked()
	c.mu.Unlock()
	return c.db.Close()
}

func (c *sqlConnector) closeCursorLocked() {
	if c.activeRows != nil {
		c.activeRows.Close()
		c.activeRows = nil
	}
}
