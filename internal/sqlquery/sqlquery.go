package sqlquery

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// allowedTables are the only tables the analytic surface may touch.
var allowedTables = map[string]struct{}{
	"facts":               {},
	"interaction_history": {},
	"user_preferences":    {},
}

const sqlSystemPrompt = `You translate natural-language questions into a single SQLite SELECT statement. Output ONLY the SQL, no explanation, no markdown fences.

Schema:
- facts(fact_id INTEGER, fact_text TEXT, source TEXT, context TEXT, timestamp TIMESTAMP)
- interaction_history(interaction_id INTEGER, timestamp TIMESTAMP, user_query TEXT, kaia_response TEXT, response_type TEXT)
- user_preferences(preference_id INTEGER, user_id TEXT, preference_key TEXT, preference_value TEXT, last_updated TIMESTAMP)

Rules:
1. Exactly one SELECT statement. No INSERT, UPDATE, DELETE, DROP, PRAGMA, or ATTACH.
2. Only the three tables above.
3. Always include a LIMIT clause, at most LIMIT 50.`

type Completer interface {
	Chat(ctx context.Context, model, system, user string) (string, error)
}

type Engine struct {
	db     *sql.DB
	llm    Completer
	model  string
	logger *zap.Logger
}

func New(db *sql.DB, llm Completer, model string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, llm: llm, model: model, logger: logger}
}

// Query turns a natural-language question into SQL, validates it, executes
// it read-only, and returns the generated SQL plus formatted result rows.
func (e *Engine) Query(ctx context.Context, question string) (string, []string, error) {
	raw, err := e.llm.Chat(ctx, e.model, sqlSystemPrompt, question)
	if err != nil {
		return "", nil, fmt.Errorf("could not generate SQL: %w", err)
	}

	sqlText := ExtractSQL(raw)
	if err := Validate(sqlText); err != nil {
		return sqlText, nil, err
	}

	e.logger.Debug("running generated SQL", zap.String("sql", sqlText))
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return sqlText, nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	formatted, err := formatRows(rows)
	if err != nil {
		return sqlText, nil, err
	}
	return sqlText, formatted, nil
}

var fencePattern = regexp.MustCompile("(?s)```(?:sql)?\n?(.*?)```")

// ExtractSQL strips markdown fences and trailing semicolons from raw model
// output.
func ExtractSQL(raw string) string {
	text := strings.TrimSpace(raw)
	if match := fencePattern.FindStringSubmatch(text); match != nil {
		text = strings.TrimSpace(match[1])
	}
	return strings.TrimSuffix(strings.TrimSpace(text), ";")
}

var identifierPattern = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

// Validate accepts only a single SELECT statement over the known tables.
// Validation runs before execution on every generated statement.
func Validate(sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return fmt.Errorf("empty SQL statement")
	}
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("multiple SQL statements are not allowed")
	}
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return fmt.Errorf("only SELECT statements are allowed")
	}

	for _, banned := range []string{"PRAGMA", "ATTACH", "INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE"} {
		if regexp.MustCompile(`(?i)\b` + banned + `\b`).MatchString(trimmed) {
			return fmt.Errorf("statement contains disallowed keyword %s", banned)
		}
	}

	matches := identifierPattern.FindAllStringSubmatch(trimmed, -1)
	if len(matches) == 0 {
		return fmt.Errorf("statement references no table")
	}
	for _, match := range matches {
		table := strings.ToLower(match[1])
		if _, ok := allowedTables[table]; !ok {
			return fmt.Errorf("table %q is not queryable", table)
		}
	}
	return nil
}

func formatRows(rows *sql.Rows) ([]string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("could not read result columns: %w", err)
	}

	table := [][]string{columns}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("could not scan result row: %w", err)
		}
		cells := make([]string, len(columns))
		for i, value := range values {
			switch v := value.(type) {
			case nil:
				cells[i] = "NULL"
			case []byte:
				cells[i] = string(v)
			default:
				cells[i] = fmt.Sprint(v)
			}
		}
		table = append(table, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read result rows: %w", err)
	}
	return alignRows(table), nil
}

// alignRows pads every column but the last to its widest cell so the rows
// line up when printed.
func alignRows(table [][]string) []string {
	widths := make([]int, len(table[0]))
	for _, row := range table {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	out := make([]string, 0, len(table))
	for _, row := range table {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i < len(row)-1 {
				cell += strings.Repeat(" ", widths[i]-len(cell))
			}
			cells[i] = cell
		}
		out = append(out, strings.Join(cells, " | "))
	}
	return out
}
