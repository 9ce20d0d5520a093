// Package spatial provides broad-phase indexing and concurrent containers
// used by the session loop.
//
// Structures use preallocated slices with integer indices (not pointers)
// to keep per-frame garbage low.
package spatial

import (
	"math"
)

// SpatialGrid buckets entity indices into square cells over a square world
// centered on the origin, spanning [-half, half] on both axes.
//
// Optimal cell size is close to the largest query radius. Cells are stored in
// row-major order (cells[row*cols+col]). Positions outside the world are
// clamped into the border cells, so queries near the edge still see them.
type SpatialGrid struct {
	half        float64
	cellSize    float64
	invCellSize float64
	cols        int
	cells       [][]uint32
	scratch     []uint32
	maxEntities int
}

// NewSpatialGrid creates a grid covering [-half, half]².
func NewSpatialGrid(half, cellSize float64, maxEntities int) *SpatialGrid {
	g := &SpatialGrid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		scratch:     make([]uint32, 0, 64),
		maxEntities: maxEntities,
	}
	g.Reset(half)
	return g
}

// Reset empties the grid and, when the world extent changed, re-dimensions it.
// Cell memory is reused when the dimensions are unchanged.
func (g *SpatialGrid) Reset(half float64) {
	cols := int(math.Ceil(2 * half * g.invCellSize))
	if cols < 1 {
		cols = 1
	}
	if cols == g.cols && half == g.half {
		for i := range g.cells {
			g.cells[i] = g.cells[i][:0]
		}
		return
	}

	g.half = half
	g.cols = cols
	g.cells = make([][]uint32, cols*cols)
	avgPerCell := g.maxEntities / len(g.cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range g.cells {
		g.cells[i] = make([]uint32, 0, avgPerCell)
	}
}

func (g *SpatialGrid) clampCell(v float64) int {
	c := int(math.Floor((v + g.half) * g.invCellSize))
	if c < 0 {
		return 0
	}
	if c >= g.cols {
		return g.cols - 1
	}
	return c
}

// Insert adds an entity index at position (x, y).
func (g *SpatialGrid) Insert(entityID uint32, x, y float64) {
	idx := g.clampCell(y)*g.cols + g.clampCell(x)
	g.cells[idx] = append(g.cells[idx], entityID)
}

// QueryRadius returns all entity indices potentially within radius of (cx, cy).
//
// IMPORTANT: The returned slice is reused on subsequent calls.
// Candidates may lie outside the radius; the caller does the narrow phase.
func (g *SpatialGrid) QueryRadius(cx, cy, radius float64) []uint32 {
	g.scratch = g.scratch[:0]

	minCol, maxCol := g.clampCell(cx-radius), g.clampCell(cx+radius)
	minRow, maxRow := g.clampCell(cy-radius), g.clampCell(cy+radius)

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[row*g.cols+col]...)
		}
	}
	return g.scratch
}

// Stats returns grid statistics for debugging/profiling.
func (g *SpatialGrid) Stats() GridStats {
	var total, maxInCell, nonEmpty int
	for _, cell := range g.cells {
		n := len(cell)
		total += n
		if n > maxInCell {
			maxInCell = n
		}
		if n > 0 {
			nonEmpty++
		}
	}
	return GridStats{
		TotalCells:    len(g.cells),
		NonEmptyCells: nonEmpty,
		TotalEntities: total,
		MaxInCell:     maxInCell,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells    int
	NonEmptyCells int
	TotalEntities int
	MaxInCell     int
}
