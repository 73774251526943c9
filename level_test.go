package main

import "testing"

func TestParseLevelSpawnPoints(t *testing.T) {
	lvl, err := ParseLevel("t", []string{
		"#P#",
		"I~.",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if lvl.Cols() != 3 || lvl.Rows() != 2 || lvl.Width() != 48 || lvl.Height() != 32 {
		t.Errorf("unexpected dimensions %dx%d", lvl.Cols(), lvl.Rows())
	}
	if len(lvl.PlayerSpawnPoints) != 1 || lvl.PlayerSpawnPoints[0] != (Point{X: 16, Y: 0}) {
		t.Errorf("player spawns = %v", lvl.PlayerSpawnPoints)
	}
	if len(lvl.ItemSpawnPoints) != 1 || lvl.ItemSpawnPoints[0] != (Point{X: 0, Y: 16}) {
		t.Errorf("item spawns = %v", lvl.ItemSpawnPoints)
	}
	if tile, _ := lvl.TileAt(1, 1); tile != TileHazard {
		t.Errorf("expected hazard, got %d", tile)
	}
	if lvl.IsWall(1, 1, true) {
		t.Error("hazard tiles are walkable")
	}
}

func TestParseLevelErrors(t *testing.T) {
	cases := map[string][]string{
		"empty":   nil,
		"ragged":  {"...", ".."},
		"unknown": {"..x"},
	}
	for name, rows := range cases {
		if _, err := ParseLevel(name, rows); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestBoxHitsWallHalfOpen(t *testing.T) {
	lvl := MustParseLevel("t", []string{
		"..#",
		"...",
	})

	if lvl.BoxHitsWall(16, 0, 16, true) {
		t.Error("box ending exactly at the wall edge should not hit")
	}
	if !lvl.BoxHitsWall(16.5, 0, 16, true) {
		t.Error("box crossing into the wall should hit")
	}
	if lvl.BoxHitsWall(32, 16, 16, true) {
		t.Error("box below the wall should not hit")
	}
	if !lvl.BoxHitsWall(32, 15, 16, true) {
		t.Error("box reaching up into the wall should hit")
	}
}

func TestBoxHitsWallOutOfBounds(t *testing.T) {
	lvl := MustParseLevel("t", []string{"..", ".."})

	if !lvl.BoxHitsWall(-1, 0, 16, true) {
		t.Error("out of bounds should count as wall")
	}
	if lvl.BoxHitsWall(-1, 0, 16, false) {
		t.Error("out of bounds ignored when not treated as wall")
	}
	if !lvl.BoxHitsWall(20, 20, 16, true) {
		t.Error("box past the bottom-right edge should hit")
	}
}

func TestLevel1(t *testing.T) {
	lvl := NewLevel1()
	if lvl.Cols() != 32 || lvl.Rows() != 24 {
		t.Fatalf("level 1 is %dx%d", lvl.Cols(), lvl.Rows())
	}
	if len(lvl.PlayerSpawnPoints) == 0 || len(lvl.ItemSpawnPoints) == 0 {
		t.Fatal("level 1 needs spawn points")
	}
	for _, p := range lvl.PlayerSpawnPoints {
		if lvl.BoxHitsWall(p.X, p.Y, PlayerSize, true) {
			t.Errorf("player spawn %v is inside a wall", p)
		}
	}
	grid := lvl.Grid()
	grid[0][0] = TileFloor
	if tile, _ := lvl.TileAt(0, 0); tile != TileWall {
		t.Error("Grid should return a copy")
	}
}

func TestNormalizeBearing(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		90:   90,
		360:  0,
		-90:  270,
		725:  5,
		-720: 0,
	}
	for in, want := range cases {
		if got := NormalizeBearing(in); got != want {
			t.Errorf("NormalizeBearing(%v) = %v, want %v", in, got, want)
		}
	}
}
