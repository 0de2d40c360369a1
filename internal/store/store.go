package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/dataview"
)

const defaultUserID = "default_user"

const schema = `
CREATE TABLE IF NOT EXISTS user_preferences (
	preference_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id          TEXT NOT NULL DEFAULT 'default_user',
	preference_key   TEXT NOT NULL,
	preference_value TEXT,
	last_updated     TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_id, preference_key)
);
CREATE TABLE IF NOT EXISTS facts (
	fact_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	fact_text TEXT NOT NULL,
	source    TEXT DEFAULT 'user_input',
	context   TEXT DEFAULT 'general',
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS interaction_history (
	interaction_id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp      TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	user_query     TEXT NOT NULL,
	kaia_response  TEXT NOT NULL,
	response_type  TEXT DEFAULT 'chat'
);
CREATE TABLE IF NOT EXISTS persona_details (
	detail_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	detail_key   TEXT NOT NULL UNIQUE,
	detail_value TEXT NOT NULL,
	last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

var defaultPersonaDetails = [][2]string{
	{"pet_name", "Pixel"},
	{"favorite_music_genre", "Jazz"},
	{"core_philosophy", "Logic, verifiable data, and clear causality"},
	{"sarcasm_level", "dry, often sarcastic wit"},
	{"favorite_operating_system", "Arch Linux"},
	{"cpu_type", "AMD Ryzen"},
	{"motherboard_model", "ROG STRIX B650-A GAMING WIFI"},
}

// Result is the explicit handler payload for data retrieval: a message, an
// optional ordered list of display rows, and the response-type tag.
type Result struct {
	Message      string
	Rows         []string
	ResponseType string
}

// Status reports connection state for the status panel.
type Status struct {
	Connected bool
	Tables    []string
}

type Store struct {
	db     *sql.DB
	userID string
	logger *zap.Logger
}

// Open opens (creating if needed) the sqlite database, applies the schema,
// and seeds the default persona details without overwriting existing rows.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not apply database schema: %w", err)
	}

	s := &Store{db: db, userID: defaultUserID, logger: logger}
	if err := s.seedPersonaDetails(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for read-only analytic queries.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) seedPersonaDetails() error {
	for _, detail := range defaultPersonaDetails {
		_, err := s.db.Exec(
			`INSERT INTO persona_details (detail_key, detail_value) VALUES (?, ?)
			 ON CONFLICT(detail_key) DO NOTHING`,
			detail[0], detail[1])
		if err != nil {
			return fmt.Errorf("could not seed persona details: %w", err)
		}
	}
	return nil
}

// LogInteraction appends one turn to the interaction history.
func (s *Store) LogInteraction(userQuery, response, responseType string) error {
	_, err := s.db.Exec(
		`INSERT INTO interaction_history (user_query, kaia_response, response_type) VALUES (?, ?, ?)`,
		userQuery, response, responseType)
	if err != nil {
		return fmt.Errorf("could not log interaction: %w", err)
	}
	return nil
}

func (s *Store) StoreFact(factText, source, context string) (int64, error) {
	if source == "" {
		source = "user_input"
	}
	if context == "" {
		context = "general"
	}
	result, err := s.db.Exec(
		`INSERT INTO facts (fact_text, source, context) VALUES (?, ?, ?)`,
		factText, source, context)
	if err != nil {
		return 0, fmt.Errorf("could not store fact: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("could not read fact id: %w", err)
	}
	return id, nil
}

func (s *Store) SetPreference(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO user_preferences (user_id, preference_key, preference_value) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, preference_key) DO UPDATE SET
		 preference_value = excluded.preference_value, last_updated = CURRENT_TIMESTAMP`,
		s.userID, key, value)
	if err != nil {
		return fmt.Errorf("could not set preference: %w", err)
	}
	return nil
}

func (s *Store) Preference(key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT preference_value FROM user_preferences WHERE user_id = ? AND preference_key = ?`,
		s.userID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("could not read preference: %w", err)
	}
	return value, nil
}

func (s *Store) PersonaDetail(key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT detail_value FROM persona_details WHERE detail_key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("could not read persona detail: %w", err)
	}
	return value, nil
}

// preferencePatterns map trigger phrases to preference keys, checked in
// order against the lower-cased text.
var preferencePatterns = []struct {
	phrase string
	key    string
}{
	{"favorite color is", "favorite_color"},
	{"default editor is", "default_editor"},
	{"preferred output method is", "output_method"},
	{"my pet's name is", "pet_name"},
}

// StoreFromText handles a store_data payload: "remember that ..." becomes a
// fact, a recognized preference phrase becomes a preference upsert, and
// anything else is kept as a plain fact so nothing the user asked to
// remember is dropped.
func (s *Store) StoreFromText(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", fmt.Errorf("nothing to store")
	}
	lower := strings.ToLower(trimmed)

	if strings.HasPrefix(lower, "remember that") {
		factText := strings.TrimSpace(trimmed[len("remember that"):])
		if factText == "" {
			return "", fmt.Errorf("nothing to store")
		}
		if _, err := s.StoreFact(factText, "user_input", "general"); err != nil {
			return "", err
		}
		return fmt.Sprintf("Remembered: %s", factText), nil
	}

	for _, pattern := range preferencePatterns {
		idx := strings.Index(lower, pattern.phrase)
		if idx < 0 {
			continue
		}
		value := strings.TrimSpace(trimmed[idx+len(pattern.phrase):])
		if value == "" {
			return "", fmt.Errorf("no value given for %s", pattern.key)
		}
		if err := s.SetPreference(pattern.key, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("Preference saved: %s = %s", prettyKey(pattern.key), value), nil
	}

	if _, err := s.StoreFact(trimmed, "user_input", "general"); err != nil {
		return "", err
	}
	return fmt.Sprintf("Stored as a fact: %s", trimmed), nil
}

// Retrieve serves one of the fixed personal-data views.
func (s *Store) Retrieve(category dataview.Category) (Result, error) {
	switch category {
	case dataview.CategoryPreferences:
		return s.retrievePreferences()
	case dataview.CategoryFacts:
		return s.retrieveFacts()
	case dataview.CategoryHistory:
		return s.retrieveHistory(10)
	case dataview.CategoryAboutMe:
		return s.retrieveAboutMe()
	default:
		return Result{
			Message:      "I couldn't determine what specific data you wanted to retrieve.",
			ResponseType: "data_retrieval_failed",
		}, nil
	}
}

func (s *Store) retrievePreferences() (Result, error) {
	rows, err := s.db.Query(
		`SELECT preference_key, preference_value FROM user_preferences
		 WHERE user_id = ? ORDER BY preference_key`, s.userID)
	if err != nil {
		return Result{}, fmt.Errorf("could not read preferences: %w", err)
	}
	defer rows.Close()

	var display []string
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Result{}, fmt.Errorf("could not scan preference row: %w", err)
		}
		display = append(display, fmt.Sprintf("%s: %s", prettyKey(key), value))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("could not read preferences: %w", err)
	}
	if len(display) == 0 {
		return Result{Message: "No preferences are currently stored.", ResponseType: "preferences_retrieved"}, nil
	}
	return Result{
		Message:      "Here are your stored preferences:",
		Rows:         display,
		ResponseType: "preferences_retrieved",
	}, nil
}

func (s *Store) retrieveFacts() (Result, error) {
	rows, err := s.db.Query(
		`SELECT fact_id, fact_text, source, timestamp FROM facts ORDER BY timestamp DESC`)
	if err != nil {
		return Result{}, fmt.Errorf("could not read facts: %w", err)
	}
	defer rows.Close()

	var display []string
	for rows.Next() {
		var id int64
		var text, source string
		var ts time.Time
		if err := rows.Scan(&id, &text, &source, &ts); err != nil {
			return Result{}, fmt.Errorf("could not scan fact row: %w", err)
		}
		display = append(display, fmt.Sprintf("ID: %d, Fact: %q, Source: %s, Time: %s",
			id, text, source, ts.Format("2006-01-02 15:04:05")))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("could not read facts: %w", err)
	}
	if len(display) == 0 {
		return Result{Message: "No facts are currently stored.", ResponseType: "facts_retrieved"}, nil
	}
	return Result{
		Message:      "Here are the stored facts:",
		Rows:         display,
		ResponseType: "facts_retrieved",
	}, nil
}

func (s *Store) retrieveHistory(limit int) (Result, error) {
	rows, err := s.db.Query(
		`SELECT timestamp, user_query, kaia_response, response_type
		 FROM interaction_history ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return Result{}, fmt.Errorf("could not read interaction history: %w", err)
	}
	defer rows.Close()

	var display []string
	for rows.Next() {
		var ts time.Time
		var query, response, responseType string
		if err := rows.Scan(&ts, &query, &response, &responseType); err != nil {
			return Result{}, fmt.Errorf("could not scan history row: %w", err)
		}
		display = append(display, fmt.Sprintf("[%s] You: %s -> Kaia (%s): %s",
			ts.Format("2006-01-02 15:04"), query, responseType, truncate(response, 120)))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("could not read interaction history: %w", err)
	}
	if len(display) == 0 {
		return Result{Message: "No interaction history yet.", ResponseType: "history_retrieved"}, nil
	}
	return Result{
		Message:      "Recent interactions:",
		Rows:         display,
		ResponseType: "history_retrieved",
	}, nil
}

// retrieveAboutMe combines preferences and facts into one summary view.
func (s *Store) retrieveAboutMe() (Result, error) {
	prefs, err := s.retrievePreferences()
	if err != nil {
		return Result{}, err
	}
	facts, err := s.retrieveFacts()
	if err != nil {
		return Result{}, err
	}

	display := append(append([]string(nil), prefs.Rows...), facts.Rows...)
	if len(display) == 0 {
		return Result{
			Message:      "I don't have anything stored about you yet.",
			ResponseType: "about_me_retrieved",
		}, nil
	}
	return Result{
		Message:      "Here's what I know about you:",
		Rows:         display,
		ResponseType: "about_me_retrieved",
	}, nil
}

// Status lists the tables so the status panel can show what's reachable.
func (s *Store) Status() Status {
	rows, err := s.db.Query(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		s.logger.Warn("could not list tables", zap.Error(err))
		return Status{}
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			s.logger.Warn("could not scan table name", zap.Error(err))
			return Status{}
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return Status{}
	}
	return Status{Connected: true, Tables: tables}
}

func prettyKey(key string) string {
	words := strings.Split(strings.ReplaceAll(key, "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
