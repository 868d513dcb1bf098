package monkey

// Board is the unpacked form of a game board: a flat byte buffer of
// length m*n indexed y*m+x. Cell values are 0 for empty or a 1-based
// seat index. The packed form (the storage and wire representation) is
// a sequence of m digit strings of length n, where the character at
// string x, position y is the cell at (x, y).
type Board struct {
	m, n  int
	cells []byte
}

// NewBoard returns an all-empty board of the given dimensions.
func NewBoard(m, n int) *Board {
	return &Board{m: m, n: n, cells: make([]byte, m*n)}
}

// UnpackBoard rebuilds a board from its packed column strings.
func UnpackBoard(data []string, m, n int) (*Board, error) {
	if len(data) != m {
		return nil, ErrInvalidArgument
	}
	b := NewBoard(m, n)
	for x, col := range data {
		if len(col) != n {
			return nil, ErrInvalidArgument
		}
		for y := 0; y < n; y++ {
			c := col[y]
			if c < '0' || c > '9' {
				return nil, ErrInvalidArgument
			}
			b.cells[y*m+x] = c - '0'
		}
	}
	return b, nil
}

// Pack flattens the board back into its column strings.
func (b *Board) Pack() []string {
	data := make([]string, b.m)
	col := make([]byte, b.n)
	for x := 0; x < b.m; x++ {
		for y := 0; y < b.n; y++ {
			col[y] = '0' + b.cells[y*b.m+x]
		}
		data[x] = string(col)
	}
	return data
}

func (b *Board) Width() int  { return b.m }
func (b *Board) Height() int { return b.n }

// InBounds reports whether (x, y) is on the board.
func (b *Board) InBounds(x, y int) bool {
	return x >= 0 && x < b.m && y >= 0 && y < b.n
}

// Cell returns the seat index at (x, y), or 0 when empty. Off-board
// positions read as empty.
func (b *Board) Cell(x, y int) int {
	if !b.InBounds(x, y) {
		return 0
	}
	return int(b.cells[y*b.m+x])
}

// SetCell writes a seat index at (x, y).
func (b *Board) SetCell(x, y, seat int) {
	b.cells[y*b.m+x] = byte(seat)
}

// StoneCount returns the number of non-empty cells.
func (b *Board) StoneCount() int {
	count := 0
	for _, c := range b.cells {
		if c != 0 {
			count++
		}
	}
	return count
}

// HasEmpty reports whether any cell is still empty.
func (b *Board) HasEmpty() bool {
	for _, c := range b.cells {
		if c == 0 {
			return true
		}
	}
	return false
}

// Grid expands the board into the [x][y] integer array used on the
// wire by status responses.
func (b *Board) Grid() [][]int {
	grid := make([][]int, b.m)
	for x := 0; x < b.m; x++ {
		col := make([]int, b.n)
		for y := 0; y < b.n; y++ {
			col[y] = int(b.cells[y*b.m+x])
		}
		grid[x] = col
	}
	return grid
}
