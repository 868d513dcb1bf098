package monkey

import (
	"regexp"

	"github.com/google/uuid"
)

// A RuleSet holds the parameters of an m,n,k,p,q-game: an m×n board,
// k consecutive stones to win, q stones placed in the very first turn
// and p stones placed in any subsequent turn. Immutable after creation
// except for the NumGames counter.
type RuleSet struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Author       string `json:"author,omitempty"`
	NumPlayers   int    `json:"num_players"`
	M            int    `json:"m"`
	N            int    `json:"n"`
	K            int    `json:"k"`
	P            int    `json:"p"`
	Q            int    `json:"q"`
	Exact        bool   `json:"exact"`
	NumGames     int    `json:"num_games"`
	UpdateSerial int    `json:"update_serial"`
}

var ruleSetNameRegexp = regexp.MustCompile(`^\w[\w&'\- ]{0,28}[\w'!]$`)

// NewRuleSet validates the parameters and returns a new rule set.
// Exact-k rule sets are rejected with ErrNotSupported.
func NewRuleSet(name string, m, n, k, p, q, numPlayers int, exact bool) (*RuleSet, error) {
	if exact {
		return nil, ErrNotSupported
	}
	if !ruleSetNameRegexp.MatchString(name) {
		return nil, ErrInvalidRuleSetName
	}
	if numPlayers < 2 || numPlayers > 9 {
		return nil, ErrInvalidRuleSet
	}
	if m < 1 || n < 1 || k < 1 || p < 1 || q < 1 {
		return nil, ErrInvalidRuleSet
	}
	return &RuleSet{
		ID:         uuid.New().String(),
		Name:       name,
		NumPlayers: numPlayers,
		M:          m,
		N:          n,
		K:          k,
		P:          p,
		Q:          q,
	}, nil
}

// WhoseTurn determines the 1-based seat index playing the given
// zero-based turn. The first seat plays the first q turns; after that
// every seat gets p consecutive turns, rotating through seats 2..N and
// back to 1.
func (rs *RuleSet) WhoseTurn(turn int) int {
	if turn < rs.Q {
		return 1
	}
	return ((turn-rs.Q)/rs.P+1)%rs.NumPlayers + 1
}

// TurnsLeft returns how many stones the current seat still places,
// including the stone of the given turn.
func (rs *RuleSet) TurnsLeft(turn int) int {
	if turn < rs.Q {
		return rs.Q - turn
	}
	return rs.P - (turn-rs.Q)%rs.P
}

// IsWin tests whether a winning line for the given seat crosses (x, y)
// on the supplied board. One counter per axis walks the ±(k−1) window
// around the stone; a counter resets on any cell that is not the
// seat's, including off-board positions, and a win is reported the
// moment a counter reaches k.
func (rs *RuleSet) IsWin(b *Board, seat, x, y int) (bool, error) {
	if rs.Exact {
		return false, ErrNotSupported
	}

	var ca, cb, cc, cd int
	for i := -rs.K + 1; i < rs.K; i++ {
		tx, txi, ty := x+i, x-i, y+i

		// Off-board cells read as empty, so they reset the counters.

		// Horizontal -
		if b.Cell(tx, y) == seat {
			ca++
		} else {
			ca = 0
		}
		// Vertical |
		if b.Cell(x, ty) == seat {
			cb++
		} else {
			cb = 0
		}
		// Diagonal \
		if b.Cell(tx, ty) == seat {
			cc++
		} else {
			cc = 0
		}
		// Diagonal /
		if b.Cell(txi, ty) == seat {
			cd++
		} else {
			cd = 0
		}

		if ca == rs.K || cb == rs.K || cc == rs.K || cd == rs.K {
			return true, nil
		}
	}
	return false, nil
}
