package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	ticketExpiry      = 24 * time.Hour
	roomCodeCost      = 8
	joinRateWindow    = 60 * time.Second
	maxJoinAttempts   = 20
	ticketSecretKey   = "ticket_secret"
	ticketIssuer      = "pew-server"
	ticketSecretBytes = 32
	rateSweepSize     = 1024
)

// Auth issues join tickets and guards room codes
type Auth struct {
	secret []byte

	// Rate limiting for join attempts (IP -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// TicketClaims binds a websocket connection to one player in one room
type TicketClaims struct {
	RoomID   string `json:"rid"`
	PlayerID string `json:"pid"`
	jwt.RegisteredClaims
}

// NewAuth creates a new Auth. db may be nil, in which case the ticket
// secret lives only as long as the process.
func NewAuth(db *DB) *Auth {
	return &Auth{
		secret:  loadOrCreateSecret(db),
		rateMap: make(map[string]*rateEntry),
	}
}

// loadOrCreateSecret loads the ticket secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting(ticketSecretKey); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == ticketSecretBytes {
				return b
			}
		}
	}
	secret := make([]byte, ticketSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate ticket secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting(ticketSecretKey, hex.EncodeToString(secret)); err != nil {
			logger.Warn("could not persist ticket secret", zap.Error(err))
		}
	}
	return secret
}

// IssueTicket signs a ticket for roomID/playerID
func (a *Auth) IssueTicket(roomID, playerID string) (string, error) {
	now := time.Now()
	claims := TicketClaims{
		RoomID:   roomID,
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ticketIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ticketExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateTicket verifies a ticket and returns (roomID, playerID)
func (a *Auth) ValidateTicket(tokenStr string) (string, string, error) {
	var claims TicketClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(ticketIssuer))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.RoomID == "" || claims.PlayerID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.RoomID, claims.PlayerID, nil
}

// HashRoomCode hashes a room code for storage on the room
func HashRoomCode(code string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(code), roomCodeCost)
}

// CheckRoomCode compares a code against its stored hash
func CheckRoomCode(hash []byte, code string) error {
	err := bcrypt.CompareHashAndPassword(hash, []byte(code))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidRoomCode
	}
	return err
}

// checkRate limits join attempts per IP so room codes cannot be brute forced
func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	if len(a.rateMap) >= rateSweepSize {
		for k, e := range a.rateMap {
			if now.After(e.ResetAt) {
				delete(a.rateMap, k)
			}
		}
	}
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(joinRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxJoinAttempts
}
