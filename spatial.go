package main

import (
	"math"
	"slices"
)

// SpatialCellSize is four tiles; players and bullets span at most two cells per axis
const SpatialCellSize = 4 * TileSize

// SpatialGrid is a uniform grid over the level for broad-phase collision
// queries. It stores indices into the caller's slice.
type SpatialGrid struct {
	cols, rows int
	cells      [][]int
}

// NewSpatialGrid creates a grid covering width x height pixels
func NewSpatialGrid(width, height float64) *SpatialGrid {
	cols := max(1, int(math.Ceil(width/SpatialCellSize)))
	rows := max(1, int(math.Ceil(height/SpatialCellSize)))
	return &SpatialGrid{
		cols:  cols,
		rows:  rows,
		cells: make([][]int, cols*rows),
	}
}

// Clear resets all cells (keeps allocated capacity)
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// span returns the clamped cell range covered by b
func (g *SpatialGrid) span(b Box) (minCX, minCY, maxCX, maxCY int) {
	clamp := func(v, hi int) int {
		if v < 0 {
			return 0
		}
		if v >= hi {
			return hi - 1
		}
		return v
	}
	minCX = clamp(int(math.Floor(b.X/SpatialCellSize)), g.cols)
	minCY = clamp(int(math.Floor(b.Y/SpatialCellSize)), g.rows)
	maxCX = clamp(int(math.Floor((b.X+b.Size)/SpatialCellSize)), g.cols)
	maxCY = clamp(int(math.Floor((b.Y+b.Size)/SpatialCellSize)), g.rows)
	return
}

// Insert adds idx to every cell overlapping b
func (g *SpatialGrid) Insert(b Box, idx int) {
	minCX, minCY, maxCX, maxCY := g.span(b)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			c := cy*g.cols + cx
			g.cells[c] = append(g.cells[c], idx)
		}
	}
}

// Query appends the indices in cells overlapping b to buf, sorted ascending
// and without duplicates, so callers see candidates in insertion-index order.
func (g *SpatialGrid) Query(b Box, buf []int) []int {
	minCX, minCY, maxCX, maxCY := g.span(b)
	start := len(buf)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			buf = append(buf, g.cells[cy*g.cols+cx]...)
		}
	}
	found := buf[start:]
	slices.Sort(found)
	return append(buf[:start], slices.Compact(found)...)
}
