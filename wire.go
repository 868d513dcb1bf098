package monkey

import "time"

// Identity is an externally authenticated user as established by the
// transport layer. The handle is an opaque stable identifier; the
// nickname is only used when a player row is first created for the
// identity.
type Identity struct {
	Handle   string
	Nickname string
}

// RequestContext carries the caller's identity material into a service
// call and session directives back out. The transport adapter reads
// IssuedToken/IssuedExpiry and ClearSession after the call to manage
// the session cookie.
type RequestContext struct {
	Identity     *Identity
	SessionToken string
	LogURL       string

	IssuedToken  string
	IssuedExpiry time.Time
	ClearSession bool

	player *Player
}

// GameStatus is the snapshot returned by status and move calls.
type GameStatus struct {
	Players       []string `json:"players"`
	Board         [][]int  `json:"board"`
	PlayingAs     int      `json:"playing_as"`
	CurrentPlayer int      `json:"current_player"`
	State         string   `json:"state"`
	Turn          int      `json:"turn"`
	RuleSetID     string   `json:"rule_set_id"`
}

// GameSummary is one row of a game listing.
type GameSummary struct {
	ID            string   `json:"id"`
	Players       []string `json:"players"`
	PlayingAs     int      `json:"playing_as"`
	CurrentPlayer int      `json:"current_player"`
	State         string   `json:"state"`
	Turn          int      `json:"turn"`
	RuleSetID     string   `json:"rule_set_id"`
	LastUpdate    int64    `json:"last_update"`
}

// PlayerInfo describes the calling player.
type PlayerInfo struct {
	Nickname  string `json:"nickname"`
	Anonymous bool   `json:"anonymous"`
	Wins      int    `json:"wins"`
	Losses    int    `json:"losses"`
	Draws     int    `json:"draws"`
	LogURL    string `json:"log_url,omitempty"`
}

// RuleSetInfo is one row of a rule set listing.
type RuleSetInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Author     string `json:"author,omitempty"`
	NumPlayers int    `json:"num_players"`
	M          int    `json:"m"`
	N          int    `json:"n"`
	K          int    `json:"k"`
	P          int    `json:"p"`
	Q          int    `json:"q"`
	NumGames   int    `json:"num_games"`
}

func ruleSetInfo(rs *RuleSet) *RuleSetInfo {
	return &RuleSetInfo{
		ID:         rs.ID,
		Name:       rs.Name,
		Author:     rs.Author,
		NumPlayers: rs.NumPlayers,
		M:          rs.M,
		N:          rs.N,
		K:          rs.K,
		P:          rs.P,
		Q:          rs.Q,
		NumGames:   rs.NumGames,
	}
}
