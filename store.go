package monkey

import "time"

// GameQuery narrows a game listing. Zero fields match everything; a
// positive Limit caps the number of returned games after filtering.
type GameQuery struct {
	States   []string
	PlayerID string
	Limit    int
}

// Store is the persistence seam of the service. Implementations keep
// one record per game, player and rule set, and enforce optimistic
// concurrency on updates: an update only succeeds when the stored
// update serial matches the one carried by the entity, and bumps both.
type Store interface {
	CreateGame(g *Game) error
	GetGame(id string) (*Game, error)
	UpdateGame(g *Game) error
	DeleteGame(id string) error
	// ListGames returns matching games, most recently updated first.
	ListGames(q GameQuery) ([]*Game, error)

	CreatePlayer(p *Player) error
	GetPlayer(id string) (*Player, error)
	// GetPlayerByUser resolves an identity handle to its player row.
	GetPlayerByUser(user string) (*Player, error)
	// GetPlayerByNickname resolves a registered (password-carrying)
	// player by current nickname.
	GetPlayerByNickname(nickname string) (*Player, error)
	// GetPlayerBySession resolves an unexpired session token.
	GetPlayerBySession(token string, now time.Time) (*Player, error)
	UpdatePlayer(p *Player) error

	CreateRuleSet(rs *RuleSet) error
	GetRuleSet(id string) (*RuleSet, error)
	UpdateRuleSet(rs *RuleSet) error
	ListRuleSets() ([]*RuleSet, error)

	Close() error
}
