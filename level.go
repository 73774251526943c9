package main

import (
	"fmt"
	"math"
	"time"
)

const TileSize = 16.0

// Tile is a single cell of the level grid. Values match the level payload sent to clients.
type Tile int

const (
	TileFloor       Tile = 0
	TilePlayerSpawn Tile = 1
	TileWall        Tile = 2
	TileItemSpawn   Tile = 3
	TileHazard      Tile = 4
)

// Point is a pixel position in level space
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Level is an immutable tile grid plus the spawn points derived from it
type Level struct {
	Name              string
	tiles             [][]Tile
	PlayerSpawnPoints []Point
	ItemSpawnPoints   []Point
	MaxItems          int
	ItemSpawnInterval time.Duration
}

var levelGlyphs = map[rune]Tile{
	'.': TileFloor,
	'P': TilePlayerSpawn,
	'#': TileWall,
	'I': TileItemSpawn,
	'~': TileHazard,
}

// ParseLevel builds a level from text rows. Rows must all have the same width.
func ParseLevel(name string, rows []string) (*Level, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("level %s: no rows", name)
	}
	width := len([]rune(rows[0]))
	if width == 0 {
		return nil, fmt.Errorf("level %s: empty first row", name)
	}
	lvl := &Level{
		Name:              name,
		tiles:             make([][]Tile, len(rows)),
		MaxItems:          DefaultMaxItems,
		ItemSpawnInterval: DefaultItemSpawnInterval,
	}
	for y, row := range rows {
		runes := []rune(row)
		if len(runes) != width {
			return nil, fmt.Errorf("level %s: row %d has width %d, want %d", name, y, len(runes), width)
		}
		lvl.tiles[y] = make([]Tile, width)
		for x, r := range runes {
			t, ok := levelGlyphs[r]
			if !ok {
				return nil, fmt.Errorf("level %s: unknown tile %q at (%d,%d)", name, r, x, y)
			}
			lvl.tiles[y][x] = t
			p := Point{X: float64(x) * TileSize, Y: float64(y) * TileSize}
			switch t {
			case TilePlayerSpawn:
				lvl.PlayerSpawnPoints = append(lvl.PlayerSpawnPoints, p)
			case TileItemSpawn:
				lvl.ItemSpawnPoints = append(lvl.ItemSpawnPoints, p)
			}
		}
	}
	return lvl, nil
}

// MustParseLevel is ParseLevel for built-in maps
func MustParseLevel(name string, rows []string) *Level {
	lvl, err := ParseLevel(name, rows)
	if err != nil {
		panic(err)
	}
	return lvl
}

// Cols returns the grid width in tiles
func (l *Level) Cols() int {
	return len(l.tiles[0])
}

// Rows returns the grid height in tiles
func (l *Level) Rows() int {
	return len(l.tiles)
}

// Width returns the level width in pixels
func (l *Level) Width() float64 {
	return float64(l.Cols()) * TileSize
}

// Height returns the level height in pixels
func (l *Level) Height() float64 {
	return float64(l.Rows()) * TileSize
}

// TileAt returns the tile at grid coordinates. ok is false outside the grid.
func (l *Level) TileAt(col, row int) (Tile, bool) {
	if row < 0 || row >= len(l.tiles) || col < 0 || col >= len(l.tiles[row]) {
		return TileWall, false
	}
	return l.tiles[row][col], true
}

// IsWall reports whether a grid cell blocks movement. Cells outside the grid
// count as walls only when outOfBoundsIsWall is set.
func (l *Level) IsWall(col, row int, outOfBoundsIsWall bool) bool {
	t, ok := l.TileAt(col, row)
	if !ok {
		return outOfBoundsIsWall
	}
	return t == TileWall
}

// BoxHitsWall reports whether the half-open box [x, x+size) x [y, y+size)
// overlaps any wall tile. Touching a wall edge is not a hit.
func (l *Level) BoxHitsWall(x, y, size float64, outOfBoundsIsWall bool) bool {
	minCol := int(math.Floor(x / TileSize))
	maxCol := int(math.Ceil((x+size)/TileSize)) - 1
	minRow := int(math.Floor(y / TileSize))
	maxRow := int(math.Ceil((y+size)/TileSize)) - 1
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			if l.IsWall(col, row, outOfBoundsIsWall) {
				return true
			}
		}
	}
	return false
}

// Grid returns a copy of the tile grid for clients
func (l *Level) Grid() [][]Tile {
	out := make([][]Tile, len(l.tiles))
	for i, row := range l.tiles {
		out[i] = append([]Tile(nil), row...)
	}
	return out
}

var level1Rows = []string{
	"################################",
	"#P.............##.............P#",
	"#..............##..............#",
	"#...####...............####....#",
	"#...#..........I...........#...#",
	"#...#......................#...#",
	"#.........######..######.......#",
	"#..............................#",
	"#..I.....~~~........~~~.....I..#",
	"#.......#..............#.......#",
	"#.......#......P.......#.......#",
	"####....#..............#....####",
	"####....#..............#....####",
	"#.......#..............#.......#",
	"#.......#.......P......#.......#",
	"#..I.....~~~........~~~.....I..#",
	"#..............................#",
	"#.........######..######.......#",
	"#...#......................#...#",
	"#...#...........I..........#...#",
	"#...####...............####....#",
	"#..............##..............#",
	"#P.............##.............P#",
	"################################",
}

// NewLevel1 returns the default arena
func NewLevel1() *Level {
	return MustParseLevel("level-1", level1Rows)
}
