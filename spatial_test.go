package main

import (
	"slices"
	"testing"
)

func TestSpatialGridInsertAndQuery(t *testing.T) {
	grid := NewSpatialGrid(512, 384)
	grid.Insert(Box{X: 10, Y: 10, Size: 16}, 0)
	grid.Insert(Box{X: 400, Y: 300, Size: 16}, 1)

	got := grid.Query(Box{X: 20, Y: 20, Size: 1}, nil)
	if !slices.Equal(got, []int{0}) {
		t.Errorf("expected [0], got %v", got)
	}
	got = grid.Query(Box{X: 300, Y: 10, Size: 1}, nil)
	if len(got) != 0 {
		t.Errorf("expected nothing, got %v", got)
	}
}

func TestSpatialGridQuerySortedAndUnique(t *testing.T) {
	grid := NewSpatialGrid(512, 384)
	// Straddles four cells
	grid.Insert(Box{X: 60, Y: 60, Size: 16}, 3)
	grid.Insert(Box{X: 62, Y: 62, Size: 16}, 1)
	grid.Insert(Box{X: 64, Y: 64, Size: 16}, 2)

	got := grid.Query(Box{X: 56, Y: 56, Size: 16}, nil)
	if !slices.Equal(got, []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", got)
	}
}

func TestSpatialGridClear(t *testing.T) {
	grid := NewSpatialGrid(512, 384)
	grid.Insert(Box{X: 100, Y: 100, Size: 16}, 0)
	grid.Clear()
	if got := grid.Query(Box{X: 100, Y: 100, Size: 16}, nil); len(got) != 0 {
		t.Errorf("expected empty grid, got %v", got)
	}
}

func TestSpatialGridClampsOutOfRange(t *testing.T) {
	grid := NewSpatialGrid(128, 128)
	grid.Insert(Box{X: -50, Y: -50, Size: 16}, 7)
	if got := grid.Query(Box{X: 0, Y: 0, Size: 1}, nil); !slices.Equal(got, []int{7}) {
		t.Errorf("expected clamped entry, got %v", got)
	}
}
