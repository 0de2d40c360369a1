package sqlquery

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/store"
)

type stubCompleter struct {
	reply string
	err   error
}

func (s stubCompleter) Chat(context.Context, string, string, string) (string, error) {
	return s.reply, s.err
}

func TestValidateAcceptsPlainSelect(t *testing.T) {
	for _, statement := range []string{
		"SELECT fact_text FROM facts LIMIT 10",
		"select preference_key, preference_value from user_preferences limit 5",
		"SELECT h.user_query FROM interaction_history h JOIN facts f ON f.fact_id = h.interaction_id LIMIT 1",
	} {
		assert.NoError(t, Validate(statement), statement)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		statement string
		wantMsg   string
	}{
		{"", "empty"},
		{"DELETE FROM facts", "only SELECT"},
		{"UPDATE facts SET fact_text = 'x'", "only SELECT"},
		{"SELECT 1; DROP TABLE facts", "multiple"},
		{"SELECT * FROM sqlite_master", "not queryable"},
		{"SELECT * FROM persona_details", "not queryable"},
		{"SELECT 1", "no table"},
		{"SELECT * FROM facts WHERE fact_text IN (SELECT name FROM pragma_table_info('facts'))", "not queryable"},
		{"PRAGMA table_info(facts)", "only SELECT"},
	}
	for _, tc := range cases {
		err := Validate(tc.statement)
		require.Error(t, err, tc.statement)
		assert.Contains(t, err.Error(), tc.wantMsg, tc.statement)
	}
}

func TestExtractSQL(t *testing.T) {
	cases := []struct{ raw, want string }{
		{"SELECT * FROM facts LIMIT 5;", "SELECT * FROM facts LIMIT 5"},
		{"```sql\nSELECT fact_text FROM facts LIMIT 1\n```", "SELECT fact_text FROM facts LIMIT 1"},
		{"```\nSELECT 1 FROM facts LIMIT 1;\n```", "SELECT 1 FROM facts LIMIT 1"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractSQL(tc.raw))
	}
}

func TestQueryRunsGeneratedSelect(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "kaia_test.db"), nil)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.StoreFact("I use zsh", "test", "")
	require.NoError(t, err)

	engine := New(s.DB(), stubCompleter{reply: "SELECT fact_text FROM facts LIMIT 10;"}, "mistral:instruct", nil)
	sqlText, rows, err := engine.Query(context.Background(), "what facts do you have")
	require.NoError(t, err)
	assert.Equal(t, "SELECT fact_text FROM facts LIMIT 10", sqlText)
	require.Len(t, rows, 2, "header plus one row")
	assert.Equal(t, "fact_text", rows[0])
	assert.Contains(t, rows[1], "I use zsh")
}

func TestAlignRowsPadsAllButLastColumn(t *testing.T) {
	rows := alignRows([][]string{
		{"preference_key", "preference_value"},
		{"shell", "zsh"},
		{"favorite_color", "teal"},
	})
	assert.Equal(t, []string{
		"preference_key | preference_value",
		"shell          | zsh",
		"favorite_color | teal",
	}, rows)
}

func TestQueryRejectsUnsafeGeneration(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "kaia_test.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	engine := New(s.DB(), stubCompleter{reply: "DROP TABLE facts"}, "mistral:instruct", nil)
	_, _, err = engine.Query(context.Background(), "delete everything")
	require.Error(t, err)

	// The table must survive the rejected statement.
	var count int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM facts").Scan(&count))
}
