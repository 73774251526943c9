package main

import (
	"crypto/rand"
	"encoding/hex"
	"math"

	"github.com/google/uuid"
)

// DefaultBearing is used when a client sends a bearing that is not a finite number
const DefaultBearing = 0.0

// GenerateID returns a random hex string of the given byte length
func GenerateID(byteLen int) string {
	b := make([]byte, byteLen)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateUUID returns a random v4 UUID string
func GenerateUUID() string {
	return uuid.NewString()
}

// NormalizeBearing wraps a bearing in degrees to [0, 360).
// NaN and infinities fall back to DefaultBearing.
func NormalizeBearing(b float64) float64 {
	if math.IsNaN(b) || math.IsInf(b, 0) {
		return DefaultBearing
	}
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	if b >= 360 {
		b = 0
	}
	return b
}

// BearingVector returns the unit vector for a bearing (0 = +X, 90 = +Y).
// Components within 1e-9 of zero are snapped so axis-aligned bearings move on one axis only.
func BearingVector(bearing float64) (float64, float64) {
	rad := bearing * math.Pi / 180
	dx, dy := math.Cos(rad), math.Sin(rad)
	if math.Abs(dx) < 1e-9 {
		dx = 0
	}
	if math.Abs(dy) < 1e-9 {
		dy = 0
	}
	return dx, dy
}
