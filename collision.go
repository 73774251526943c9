package main

// Corner is one corner of a bounding box
type Corner struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Box is an axis-aligned square bounding box anchored at its top-left corner
type Box struct {
	X, Y float64
	Size float64
}

func (b Box) TopLeft() Corner     { return Corner{b.X, b.Y} }
func (b Box) TopRight() Corner    { return Corner{b.X + b.Size, b.Y} }
func (b Box) BottomLeft() Corner  { return Corner{b.X, b.Y + b.Size} }
func (b Box) BottomRight() Corner { return Corner{b.X + b.Size, b.Y + b.Size} }

// Center returns the midpoint of the box
func (b Box) Center() (float64, float64) {
	half := b.Size / 2
	return b.X + half, b.Y + half
}

// At returns a copy of the box moved to (x, y)
func (b Box) At(x, y float64) Box {
	return Box{X: x, Y: y, Size: b.Size}
}

// Overlaps is a strict AABB test: boxes that only share an edge do not overlap
func (b Box) Overlaps(o Box) bool {
	return o.X < b.X+b.Size &&
		o.X+o.Size > b.X &&
		o.Y < b.Y+b.Size &&
		o.Y+o.Size > b.Y
}

// HitsWall tests the box against the level's wall tiles
func (b Box) HitsWall(l *Level, outOfBoundsIsWall bool) bool {
	return l.BoxHitsWall(b.X, b.Y, b.Size, outOfBoundsIsWall)
}

// contactKey is an unordered pair of entity ids
type contactKey struct {
	A, B string
}

func makeContactKey(a, b string) contactKey {
	if b < a {
		a, b = b, a
	}
	return contactKey{A: a, B: b}
}

// ContactTracker remembers which entity pairs were overlapping on the last
// tick so overlap can be reported once on enter and once on exit.
type ContactTracker struct {
	pairs map[contactKey]struct{}
}

// NewContactTracker creates an empty tracker
func NewContactTracker() *ContactTracker {
	return &ContactTracker{pairs: make(map[contactKey]struct{})}
}

// Touch records that a and b overlap. Returns true if the pair was not already in contact.
func (t *ContactTracker) Touch(a, b string) bool {
	k := makeContactKey(a, b)
	if _, ok := t.pairs[k]; ok {
		return false
	}
	t.pairs[k] = struct{}{}
	return true
}

// InContact reports whether a and b are currently tracked as overlapping
func (t *ContactTracker) InContact(a, b string) bool {
	_, ok := t.pairs[makeContactKey(a, b)]
	return ok
}

// Sweep drops every pair for which overlapping returns false and returns the dropped pairs
func (t *ContactTracker) Sweep(overlapping func(a, b string) bool) [][2]string {
	var exited [][2]string
	for k := range t.pairs {
		if !overlapping(k.A, k.B) {
			delete(t.pairs, k)
			exited = append(exited, [2]string{k.A, k.B})
		}
	}
	return exited
}

// Forget removes every pair involving id
func (t *ContactTracker) Forget(id string) {
	for k := range t.pairs {
		if k.A == id || k.B == id {
			delete(t.pairs, k)
		}
	}
}

// Len returns the number of tracked pairs
func (t *ContactTracker) Len() int {
	return len(t.pairs)
}
