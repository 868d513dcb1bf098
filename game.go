package monkey

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"
)

const (
	GameState_Waiting = "waiting"
	GameState_Playing = "playing"
	GameState_Aborted = "aborted"
	GameState_Draw    = "draw"
	GameState_Win     = "win"
)

// Game is the central entity of the server: an m,n,k,p,q-game between
// ordered seats. Seat i (1-based) is held by Players[i-1]. Turn counts
// the stones placed so far and is -1 before the game starts and after
// an abort. The packed board is the source of truth; the unpacked form
// is cached per instance and rebuilt on demand.
type Game struct {
	ID            string   `json:"id"`
	State         string   `json:"state"`
	RuleSetID     string   `json:"rule_set_id"`
	Players       []string `json:"players"`
	PlayerNames   []string `json:"player_names"`
	CurrentPlayer int      `json:"current_player"`
	Turn          int      `json:"turn"`
	BoardData     []string `json:"board"`
	Added         int64    `json:"added"`
	LastUpdate    int64    `json:"last_update"`
	UpdateSerial  int      `json:"update_serial"`

	ruleSet *RuleSet
	board   *Board
}

// NewGame creates a game in the waiting state with an empty roster and
// an all-empty board drawn from the rule set's dimensions.
func NewGame(rs *RuleSet, now time.Time) *Game {
	g := &Game{
		ID:          uuid.New().String(),
		State:       GameState_Waiting,
		RuleSetID:   rs.ID,
		Players:     make([]string, 0, rs.NumPlayers),
		PlayerNames: make([]string, 0, rs.NumPlayers),
		Turn:        -1,
		Added:       now.Unix(),
		LastUpdate:  now.Unix(),
		ruleSet:     rs,
	}
	g.board = NewBoard(rs.M, rs.N)
	g.BoardData = g.board.Pack()
	return g
}

// AttachRuleSet wires the referenced rule set onto a game loaded from
// storage. Games hold a rule set id only; navigation goes through the
// store.
func (g *Game) AttachRuleSet(rs *RuleSet) {
	g.ruleSet = rs
	g.board = nil
}

// RuleSet returns the attached rule set, or nil when not yet attached.
func (g *Game) RuleSet() *RuleSet {
	return g.ruleSet
}

// Board returns the unpacked board, rebuilding and caching it from the
// packed data on first use.
func (g *Game) Board() (*Board, error) {
	if g.board != nil {
		return g.board, nil
	}
	b, err := UnpackBoard(g.BoardData, g.ruleSet.M, g.ruleSet.N)
	if err != nil {
		return nil, err
	}
	g.board = b
	return b, nil
}

// Seat returns the 1-based seat of the given player, or 0 when the
// player is not in the game.
func (g *Game) Seat(playerID string) int {
	return funk.IndexOf(g.Players, playerID) + 1
}

// IsTerminal reports whether the game has ended.
func (g *Game) IsTerminal() bool {
	return g.State == GameState_Win || g.State == GameState_Draw || g.State == GameState_Aborted
}

// AddPlayer appends a player to the roster. When the last seat fills,
// seats are randomly permuted and play begins.
func (g *Game) AddPlayer(p *Player, now time.Time) error {
	if funk.ContainsString(g.Players, p.ID) {
		return ErrAlreadyInGame
	}
	if len(g.Players) >= g.ruleSet.NumPlayers {
		return ErrGameFull
	}
	if g.State != GameState_Waiting {
		return ErrNotAccepting
	}

	g.Players = append(g.Players, p.ID)
	g.PlayerNames = append(g.PlayerNames, p.Nickname)

	if len(g.Players) == g.ruleSet.NumPlayers {
		rand.Shuffle(len(g.Players), func(i, j int) {
			g.Players[i], g.Players[j] = g.Players[j], g.Players[i]
			g.PlayerNames[i], g.PlayerNames[j] = g.PlayerNames[j], g.PlayerNames[i]
		})
		g.State = GameState_Playing
		g.Turn = 0
		g.CurrentPlayer = 1
	}

	g.LastUpdate = now.Unix()
	return nil
}

// RemovePlayer drops a player from a waiting game, or aborts a playing
// one. Removing from a terminal game fails. The caller decides whether
// a waiting game that lost its last human should be deleted.
func (g *Game) RemovePlayer(playerID string, now time.Time) error {
	seat := g.Seat(playerID)
	if seat == 0 {
		return ErrNotSeated
	}
	if g.IsTerminal() {
		return ErrGameOver
	}

	if g.State == GameState_Playing {
		return g.Abort(now)
	}

	i := seat - 1
	g.Players = append(g.Players[:i], g.Players[i+1:]...)
	g.PlayerNames = append(g.PlayerNames[:i], g.PlayerNames[i+1:]...)
	g.LastUpdate = now.Unix()
	return nil
}

// Abort terminates a waiting or playing game without a result.
func (g *Game) Abort(now time.Time) error {
	if g.IsTerminal() {
		return ErrTerminalGame
	}
	g.State = GameState_Aborted
	g.Turn = -1
	g.CurrentPlayer = 0
	g.LastUpdate = now.Unix()
	return nil
}

// Move arbitrates one stone placement. On success the stone is
// committed, the turn counter advances and the game transitions to
// win, draw, or the next player's turn. Rating counter updates belong
// to the caller, which observes the resulting state.
func (g *Game) Move(playerID string, x, y int, now time.Time) error {
	seat := g.Seat(playerID)
	if seat == 0 {
		return ErrNotInGame
	}
	if g.State != GameState_Playing {
		return ErrNotPlaying
	}
	if seat != g.CurrentPlayer {
		return ErrNotYourTurn
	}

	board, err := g.Board()
	if err != nil {
		return err
	}
	if !board.InBounds(x, y) || board.Cell(x, y) != 0 {
		return ErrInvalidPosition
	}

	board.SetCell(x, y, seat)
	g.Turn++

	win, err := g.ruleSet.IsWin(board, seat, x, y)
	if err != nil {
		return err
	}
	switch {
	case win:
		g.State = GameState_Win
		// CurrentPlayer keeps the winner's seat.
	case !board.HasEmpty():
		g.State = GameState_Draw
		g.CurrentPlayer = 0
	default:
		g.CurrentPlayer = g.ruleSet.WhoseTurn(g.Turn)
	}

	g.BoardData = board.Pack()
	g.LastUpdate = now.Unix()
	return nil
}
