package monkey

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thoas/go-funk"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rule_sets (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	author        TEXT NOT NULL DEFAULT '',
	num_players   INTEGER NOT NULL,
	m             INTEGER NOT NULL,
	n             INTEGER NOT NULL,
	k             INTEGER NOT NULL,
	p             INTEGER NOT NULL,
	q             INTEGER NOT NULL,
	exact         INTEGER NOT NULL DEFAULT 0,
	num_games     INTEGER NOT NULL DEFAULT 0,
	update_serial INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS players (
	id             TEXT PRIMARY KEY,
	user           TEXT NOT NULL,
	nickname       TEXT NOT NULL,
	wins           INTEGER NOT NULL DEFAULT 0,
	losses         INTEGER NOT NULL DEFAULT 0,
	draws          INTEGER NOT NULL DEFAULT 0,
	password_hash  TEXT NOT NULL DEFAULT '',
	session_token  TEXT NOT NULL DEFAULT '',
	session_expiry INTEGER NOT NULL DEFAULT 0,
	update_serial  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS players_by_session ON players (session_token);
CREATE INDEX IF NOT EXISTS players_by_user ON players (user);

CREATE TABLE IF NOT EXISTS games (
	id             TEXT PRIMARY KEY,
	state          TEXT NOT NULL,
	rule_set_id    TEXT NOT NULL,
	players        TEXT NOT NULL,
	player_names   TEXT NOT NULL,
	current_player INTEGER NOT NULL DEFAULT 0,
	turn           INTEGER NOT NULL DEFAULT -1,
	board          TEXT NOT NULL,
	added          INTEGER NOT NULL,
	last_update    INTEGER NOT NULL,
	update_serial  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS games_by_state ON games (state, last_update);
`

// SQLiteStore is the durable Store, a single-file database suitable
// for one server process. Player rosters and packed boards are stored
// as JSON arrays in text columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at path
// and applies the schema. Pass ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// A single writer keeps the optimistic update checks race-free.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable wal: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func marshalStrings(in []string) string {
	if in == nil {
		in = []string{}
	}
	raw, _ := json.Marshal(in)
	return string(raw)
}

func unmarshalStrings(raw string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("store: corrupt list column: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CreateGame(g *Game) error {
	_, err := s.db.Exec(`
		INSERT INTO games (id, state, rule_set_id, players, player_names,
			current_player, turn, board, added, last_update, update_serial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.State, g.RuleSetID, marshalStrings(g.Players), marshalStrings(g.PlayerNames),
		g.CurrentPlayer, g.Turn, marshalStrings(g.BoardData), g.Added, g.LastUpdate, g.UpdateSerial)
	if err != nil {
		return fmt.Errorf("store: insert game: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanGame(row *sql.Row) (*Game, error) {
	g := &Game{}
	var players, names, board string
	err := row.Scan(&g.ID, &g.State, &g.RuleSetID, &players, &names,
		&g.CurrentPlayer, &g.Turn, &board, &g.Added, &g.LastUpdate, &g.UpdateSerial)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan game: %w", err)
	}
	if g.Players, err = unmarshalStrings(players); err != nil {
		return nil, err
	}
	if g.PlayerNames, err = unmarshalStrings(names); err != nil {
		return nil, err
	}
	if g.BoardData, err = unmarshalStrings(board); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *SQLiteStore) GetGame(id string) (*Game, error) {
	row := s.db.QueryRow(`
		SELECT id, state, rule_set_id, players, player_names,
			current_player, turn, board, added, last_update, update_serial
		FROM games WHERE id = ?`, id)
	return s.scanGame(row)
}

func (s *SQLiteStore) UpdateGame(g *Game) error {
	res, err := s.db.Exec(`
		UPDATE games SET state = ?, rule_set_id = ?, players = ?, player_names = ?,
			current_player = ?, turn = ?, board = ?, added = ?, last_update = ?,
			update_serial = update_serial + 1
		WHERE id = ? AND update_serial = ?`,
		g.State, g.RuleSetID, marshalStrings(g.Players), marshalStrings(g.PlayerNames),
		g.CurrentPlayer, g.Turn, marshalStrings(g.BoardData), g.Added, g.LastUpdate,
		g.ID, g.UpdateSerial)
	if err != nil {
		return fmt.Errorf("store: update game: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update game: %w", err)
	}
	if affected == 0 {
		return ErrConcurrentUpdate
	}
	g.UpdateSerial++
	return nil
}

func (s *SQLiteStore) DeleteGame(id string) error {
	res, err := s.db.Exec(`DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete game: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete game: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListGames(q GameQuery) ([]*Game, error) {
	query := `
		SELECT id, state, rule_set_id, players, player_names,
			current_player, turn, board, added, last_update, update_serial
		FROM games`
	args := []any{}
	if len(q.States) > 0 {
		query += ` WHERE state IN (?` + strings.Repeat(`, ?`, len(q.States)-1) + `)`
		for _, st := range q.States {
			args = append(args, st)
		}
	}
	query += ` ORDER BY last_update DESC, id ASC`
	// The player filter works on the JSON roster column, so it is
	// applied after scanning; the SQL limit only applies without it.
	if q.PlayerID == "" && q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list games: %w", err)
	}
	defer rows.Close()

	matches := make([]*Game, 0)
	for rows.Next() {
		g := &Game{}
		var players, names, board string
		err := rows.Scan(&g.ID, &g.State, &g.RuleSetID, &players, &names,
			&g.CurrentPlayer, &g.Turn, &board, &g.Added, &g.LastUpdate, &g.UpdateSerial)
		if err != nil {
			return nil, fmt.Errorf("store: scan game: %w", err)
		}
		if g.Players, err = unmarshalStrings(players); err != nil {
			return nil, err
		}
		if g.PlayerNames, err = unmarshalStrings(names); err != nil {
			return nil, err
		}
		if g.BoardData, err = unmarshalStrings(board); err != nil {
			return nil, err
		}
		if q.PlayerID != "" && !funk.ContainsString(g.Players, q.PlayerID) {
			continue
		}
		matches = append(matches, g)
		if q.Limit > 0 && len(matches) == q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list games: %w", err)
	}
	return matches, nil
}

func (s *SQLiteStore) CreatePlayer(p *Player) error {
	_, err := s.db.Exec(`
		INSERT INTO players (id, user, nickname, wins, losses, draws,
			password_hash, session_token, session_expiry, update_serial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.User, p.Nickname, p.Wins, p.Losses, p.Draws,
		p.PasswordHash, p.SessionToken, p.SessionExpiry, p.UpdateSerial)
	if err != nil {
		return fmt.Errorf("store: insert player: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanPlayer(row *sql.Row) (*Player, error) {
	p := &Player{}
	err := row.Scan(&p.ID, &p.User, &p.Nickname, &p.Wins, &p.Losses, &p.Draws,
		&p.PasswordHash, &p.SessionToken, &p.SessionExpiry, &p.UpdateSerial)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan player: %w", err)
	}
	return p, nil
}

const playerColumns = `id, user, nickname, wins, losses, draws,
	password_hash, session_token, session_expiry, update_serial`

func (s *SQLiteStore) GetPlayer(id string) (*Player, error) {
	return s.scanPlayer(s.db.QueryRow(
		`SELECT `+playerColumns+` FROM players WHERE id = ?`, id))
}

func (s *SQLiteStore) GetPlayerByUser(user string) (*Player, error) {
	return s.scanPlayer(s.db.QueryRow(
		`SELECT `+playerColumns+` FROM players WHERE user = ? LIMIT 1`, user))
}

func (s *SQLiteStore) GetPlayerByNickname(nickname string) (*Player, error) {
	return s.scanPlayer(s.db.QueryRow(
		`SELECT `+playerColumns+` FROM players
		WHERE password_hash != '' AND nickname = ? COLLATE NOCASE LIMIT 1`, nickname))
}

func (s *SQLiteStore) GetPlayerBySession(token string, now time.Time) (*Player, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.scanPlayer(s.db.QueryRow(
		`SELECT `+playerColumns+` FROM players
		WHERE session_token = ? AND session_expiry > ? LIMIT 1`, token, now.Unix()))
}

func (s *SQLiteStore) UpdatePlayer(p *Player) error {
	res, err := s.db.Exec(`
		UPDATE players SET user = ?, nickname = ?, wins = ?, losses = ?, draws = ?,
			password_hash = ?, session_token = ?, session_expiry = ?,
			update_serial = update_serial + 1
		WHERE id = ? AND update_serial = ?`,
		p.User, p.Nickname, p.Wins, p.Losses, p.Draws,
		p.PasswordHash, p.SessionToken, p.SessionExpiry,
		p.ID, p.UpdateSerial)
	if err != nil {
		return fmt.Errorf("store: update player: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update player: %w", err)
	}
	if affected == 0 {
		return ErrConcurrentUpdate
	}
	p.UpdateSerial++
	return nil
}

func (s *SQLiteStore) CreateRuleSet(rs *RuleSet) error {
	exact := 0
	if rs.Exact {
		exact = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO rule_sets (id, name, author, num_players, m, n, k, p, q,
			exact, num_games, update_serial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rs.ID, rs.Name, rs.Author, rs.NumPlayers, rs.M, rs.N, rs.K, rs.P, rs.Q,
		exact, rs.NumGames, rs.UpdateSerial)
	if err != nil {
		return fmt.Errorf("store: insert rule set: %w", err)
	}
	return nil
}

const ruleSetColumns = `id, name, author, num_players, m, n, k, p, q,
	exact, num_games, update_serial`

func scanRuleSet(scan func(dest ...any) error) (*RuleSet, error) {
	rs := &RuleSet{}
	var exact int
	err := scan(&rs.ID, &rs.Name, &rs.Author, &rs.NumPlayers,
		&rs.M, &rs.N, &rs.K, &rs.P, &rs.Q, &exact, &rs.NumGames, &rs.UpdateSerial)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan rule set: %w", err)
	}
	rs.Exact = exact != 0
	return rs, nil
}

func (s *SQLiteStore) GetRuleSet(id string) (*RuleSet, error) {
	row := s.db.QueryRow(`SELECT `+ruleSetColumns+` FROM rule_sets WHERE id = ?`, id)
	return scanRuleSet(row.Scan)
}

func (s *SQLiteStore) UpdateRuleSet(rs *RuleSet) error {
	exact := 0
	if rs.Exact {
		exact = 1
	}
	res, err := s.db.Exec(`
		UPDATE rule_sets SET name = ?, author = ?, num_players = ?,
			m = ?, n = ?, k = ?, p = ?, q = ?, exact = ?, num_games = ?,
			update_serial = update_serial + 1
		WHERE id = ? AND update_serial = ?`,
		rs.Name, rs.Author, rs.NumPlayers, rs.M, rs.N, rs.K, rs.P, rs.Q,
		exact, rs.NumGames, rs.ID, rs.UpdateSerial)
	if err != nil {
		return fmt.Errorf("store: update rule set: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update rule set: %w", err)
	}
	if affected == 0 {
		return ErrConcurrentUpdate
	}
	rs.UpdateSerial++
	return nil
}

func (s *SQLiteStore) ListRuleSets() ([]*RuleSet, error) {
	rows, err := s.db.Query(`SELECT ` + ruleSetColumns + ` FROM rule_sets ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list rule sets: %w", err)
	}
	defer rows.Close()
	out := make([]*RuleSet, 0)
	for rows.Next() {
		rs, err := scanRuleSet(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rule sets: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
