package main

import "time"

const (
	ItemSize = 16.0

	DefaultMaxItems          = 2
	DefaultItemSpawnInterval = 15 * time.Second

	ItemRapidFire      = "Rapid Fire"
	RapidFireReduction = 50 * time.Millisecond
)

// Item is a pickup sitting on an item spawn point
type Item struct {
	ID   string
	Name string
	Box  Box
}

// NewItem creates an item at a spawn point
func NewItem(name string, at Point) *Item {
	return &Item{
		ID:   GenerateID(4),
		Name: name,
		Box:  Box{X: at.X, Y: at.Y, Size: ItemSize},
	}
}

// Apply gives the item's effect to a player
func (it *Item) Apply(p *Player) {
	switch it.Name {
	case ItemRapidFire:
		p.ApplyFireRateBoost(RapidFireReduction)
	}
}

// ToState converts to protocol state
func (it *Item) ToState() ItemState {
	return ItemState{
		ID:   it.ID,
		Name: it.Name,
		X:    it.Box.X,
		Y:    it.Box.Y,
	}
}
