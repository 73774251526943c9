package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// shareLink returns the URL a player opens to join a room by name
func shareLink(publicURL, roomName string) string {
	base := strings.TrimRight(publicURL, "/")
	return fmt.Sprintf("%s/?room=%s", base, url.QueryEscape(roomName))
}

// roomQRCode renders the share link of a room as a PNG
func roomQRCode(publicURL string, r *Room) ([]byte, error) {
	png, err := qrcode.Encode(shareLink(publicURL, r.Name), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr for room %s: %w", r.ID, err)
	}
	return png, nil
}
