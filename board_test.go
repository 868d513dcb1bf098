package monkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardPackUnpackRoundTrip(t *testing.T) {
	b := NewBoard(5, 4)
	b.SetCell(0, 0, 1)
	b.SetCell(4, 3, 2)
	b.SetCell(2, 1, 3)

	packed := b.Pack()
	require.Len(t, packed, 5)
	for _, col := range packed {
		assert.Len(t, col, 4)
	}

	restored, err := UnpackBoard(packed, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, packed, restored.Pack())
	assert.Equal(t, 1, restored.Cell(0, 0))
	assert.Equal(t, 2, restored.Cell(4, 3))
	assert.Equal(t, 3, restored.Cell(2, 1))
}

func TestUnpackBoardRejectsMalformedData(t *testing.T) {
	_, err := UnpackBoard([]string{"000"}, 2, 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = UnpackBoard([]string{"00", "000"}, 2, 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = UnpackBoard([]string{"0a0", "000"}, 2, 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBoardOffBoardReadsEmpty(t *testing.T) {
	b := NewBoard(3, 3)
	b.SetCell(0, 0, 1)

	assert.Equal(t, 0, b.Cell(-1, 0))
	assert.Equal(t, 0, b.Cell(0, -1))
	assert.Equal(t, 0, b.Cell(3, 0))
	assert.Equal(t, 0, b.Cell(0, 3))
	assert.False(t, b.InBounds(3, 0))
	assert.True(t, b.InBounds(2, 2))
}

func TestBoardGridIsColumnMajor(t *testing.T) {
	b := NewBoard(3, 2)
	b.SetCell(2, 1, 1)

	grid := b.Grid()
	require.Len(t, grid, 3)
	require.Len(t, grid[0], 2)
	assert.Equal(t, 1, grid[2][1])
	assert.Equal(t, 0, grid[1][1])
}

func TestBoardCounts(t *testing.T) {
	b := NewBoard(2, 2)
	assert.True(t, b.HasEmpty())
	assert.Equal(t, 0, b.StoneCount())

	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			b.SetCell(x, y, 1)
		}
	}
	assert.False(t, b.HasEmpty())
	assert.Equal(t, 4, b.StoneCount())
}
