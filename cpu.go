package monkey

import (
	"math/rand"
	"sort"
	"time"
)

// DefaultCleverness is the tie-breaking strictness of the strategist.
// Higher values shrink the random perturbation window applied while
// sorting candidate moves.
const DefaultCleverness = 10.0

// Strategist is the heuristic CPU opponent: a one-ply threat analyser
// that scans every maximal monochrome run on the four axes, evaluates
// the expand points on both ends, and picks a move by forced-move
// rules first, then a scored heuristic, with a centre-biased fallback.
// It holds no state across calls beyond its random source.
type Strategist struct {
	Cleverness float64
	rng        *rand.Rand
}

func NewStrategist(cleverness float64) *Strategist {
	if cleverness <= 0 {
		cleverness = DefaultCleverness
	}
	return &Strategist{
		Cleverness: cleverness,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type point struct {
	x, y int
}

type candidate struct {
	point
	score float64
}

// analysis is the per-call scratch state of one board scan.
type analysis struct {
	board     *Board
	rules     *RuleSet
	seat      int
	turnsLeft int

	forced *point
	blocks map[point]bool
	scores map[point]float64
}

// ChooseMove returns exactly one legal move for the given seat, or an
// error when the seat is not part of the rule set's roster.
func (st *Strategist) ChooseMove(board *Board, rs *RuleSet, seat, turnsLeft int) (int, int, error) {
	if seat < 1 || seat > rs.NumPlayers {
		return 0, 0, ErrCPUWithoutSeat
	}

	a := &analysis{
		board:     board,
		rules:     rs,
		seat:      seat,
		turnsLeft: turnsLeft,
		blocks:    make(map[point]bool),
		scores:    make(map[point]float64),
	}
	a.scan()

	// A winning own move outranks everything, including blocks.
	if a.forced != nil {
		return a.forced.x, a.forced.y, nil
	}

	moves := a.sorted(st.rng, st.Cleverness)

	// A pending opponent win must be blocked before chasing scores.
	for _, c := range moves {
		if a.blocks[c.point] {
			return c.x, c.y, nil
		}
	}
	if len(moves) > 0 {
		return moves[0].x, moves[0].y, nil
	}

	// Nothing threatens anything yet: take the centremost free cell.
	return a.centremost()
}

// scan sweeps the four axes. Each sweep threads a (previous seat, run
// length) pair cell by cell and emits the just-ended run at every
// boundary. Diagonal sweeps are seeded from the top row and the
// appropriate side column so that every diagonal is visited once.
func (a *analysis) scan() {
	m, n := a.board.Width(), a.board.Height()

	// Rows
	for y := 0; y < n; y++ {
		a.sweep(0, y, 1, 0)
	}
	// Columns
	for x := 0; x < m; x++ {
		a.sweep(x, 0, 0, 1)
	}
	// Diagonals \
	for x := 0; x < m; x++ {
		a.sweep(x, 0, 1, 1)
	}
	for y := 1; y < n; y++ {
		a.sweep(0, y, 1, 1)
	}
	// Diagonals /
	for x := 0; x < m; x++ {
		a.sweep(x, 0, -1, 1)
	}
	for y := 1; y < n; y++ {
		a.sweep(m-1, y, -1, 1)
	}
}

func (a *analysis) sweep(sx, sy, dx, dy int) {
	prev, run := 0, 0
	x, y := sx, sy
	for a.board.InBounds(x, y) {
		c := a.board.Cell(x, y)
		if c != 0 && c == prev {
			run++
		} else {
			if prev != 0 {
				a.emitRun(prev, run, dx, dy, x, y)
			}
			prev = c
			run = 1
		}
		x += dx
		y += dy
	}
	if prev != 0 {
		a.emitRun(prev, run, dx, dy, x, y)
	}
}

// emitRun evaluates a maximal run of length length by seat s along
// (dx, dy), ending just before (ex, ey).
func (a *analysis) emitRun(s, length, dx, dy, ex, ey int) {
	// After the run's far end, and before its near end.
	a.evalDirection(s, length, ex, ey, dx, dy)
	a.evalDirection(s, length, ex-(length+1)*dx, ey-(length+1)*dy, -dx, -dy)
}

// evalDirection looks outward from one end of a run, up to k−length
// cells: f counts free cells before a non-match, u counts further
// same-seat stones reached through free cells, and the immediate
// adjacent empty cell (if any) becomes the candidate move.
func (a *analysis) evalDirection(s, length, sx, sy, dx, dy int) {
	k := a.rules.K
	f, u := 0, 0
	var cand *point
	x, y := sx, sy
	for step := 0; step < k-length; step++ {
		if !a.board.InBounds(x, y) {
			break
		}
		c := a.board.Cell(x, y)
		if c != 0 && c != s {
			break
		}
		if c == s {
			u++
		} else {
			if step == 0 {
				cand = &point{x, y}
			}
			f++
		}
		x += dx
		y += dy
	}
	if cand == nil {
		return
	}

	cpu := s == a.seat
	if cpu && length+u+1 >= k {
		// Placing the adjacent stone completes the line: forced win.
		if a.forced == nil {
			a.forced = cand
		}
		return
	}
	if length+u+f < k {
		// The line can no longer reach k on this side.
		return
	}

	if !cpu && length+u+min(a.turnsLeft, f) >= k {
		a.blocks[*cand] = true
	}

	score := float64(length*6 + f)
	if cpu {
		score += float64(k * 2)
	}
	a.merge(*cand, score)
}

// merge folds a candidate into the move list. Coinciding candidates
// take the larger score plus half the smaller, rewarding cells where
// threats intersect.
func (a *analysis) merge(pt point, score float64) {
	if old, ok := a.scores[pt]; ok {
		if old < score {
			old, score = score, old
		}
		a.scores[pt] = old + score/2
		return
	}
	a.scores[pt] = score
}

// sorted orders the candidates by descending score, perturbed within a
// window of k*10/cleverness so that near-ties resolve randomly.
func (a *analysis) sorted(rng *rand.Rand, cleverness float64) []candidate {
	window := float64(a.rules.K) * 10.0 / cleverness
	moves := make([]candidate, 0, len(a.scores))
	for pt, score := range a.scores {
		moves = append(moves, candidate{point: pt, score: score + rng.Float64()*window})
	}
	sort.Slice(moves, func(i, j int) bool {
		return moves[i].score > moves[j].score
	})
	return moves
}

// centremost returns the empty cell closest to the board centre by
// squared Euclidean distance.
func (a *analysis) centremost() (int, int, error) {
	m, n := a.board.Width(), a.board.Height()
	cx, cy := float64(m-1)/2, float64(n-1)/2
	best, found := point{}, false
	bestDist := 0.0
	for y := 0; y < n; y++ {
		for x := 0; x < m; x++ {
			if a.board.Cell(x, y) != 0 {
				continue
			}
			ddx, ddy := float64(x)-cx, float64(y)-cy
			dist := ddx*ddx + ddy*ddy
			if !found || dist < bestDist {
				best, bestDist, found = point{x, y}, dist, true
			}
		}
	}
	if !found {
		return 0, 0, ErrInvalidPosition
	}
	return best.x, best.y, nil
}
