package main

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	ChatLogCap        = 50
	MaxChatContentLen = 200
)

// ChatLog is a room's bounded chat history; the oldest entries are dropped first
type ChatLog struct {
	mu      sync.Mutex
	entries []ChatEntry
	cap     int
}

// NewChatLog creates a chat log holding at most capacity entries
func NewChatLog(capacity int) *ChatLog {
	if capacity <= 0 {
		capacity = ChatLogCap
	}
	return &ChatLog{cap: capacity}
}

// Add appends an entry and returns it
func (c *ChatLog) Add(playerID, playerName string, colour Colour, content string, system bool, at time.Time) ChatEntry {
	entry := ChatEntry{
		ChatID:       GenerateUUID(),
		PlayerID:     playerID,
		PlayerName:   playerName,
		PlayerColour: colour,
		Content:      content,
		Timestamp:    at.UnixMilli(),
		IsSystem:     system,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	if over := len(c.entries) - c.cap; over > 0 {
		c.entries = append(c.entries[:0:0], c.entries[over:]...)
	}
	return entry
}

// List returns a copy of the log, oldest first
func (c *ChatLog) List() []ChatEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of stored entries
func (c *ChatLog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SanitizeChat trims content and caps its length in runes
func SanitizeChat(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("empty chat: %w", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(content) > MaxChatContentLen {
		content = string([]rune(content)[:MaxChatContentLen])
	}
	return content, nil
}
