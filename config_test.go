package main

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":8080" || cfg.MaxRooms != DefaultMaxRooms || cfg.RoomIdleTimeout != DefaultRoomIdleTimeout {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigEnvThenFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PEW_ADDR", ":9000")
	t.Setenv("PEW_MAX_ROOMS", "5")
	t.Setenv("PEW_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PEW_ROOM_IDLE_TIMEOUT", "30s")

	cfg, err := LoadConfig([]string{"-max-rooms", "7"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("env addr not applied: %s", cfg.Addr)
	}
	if cfg.MaxRooms != 7 {
		t.Errorf("flag should override env, got %d", cfg.MaxRooms)
	}
	if cfg.RoomIdleTimeout != 30*time.Second {
		t.Errorf("unexpected idle timeout %s", cfg.RoomIdleTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PEW_MAX_ROOMS", "lots")
	if _, err := LoadConfig(nil); err == nil {
		t.Error("non-numeric max rooms should fail")
	}

	t.Setenv("PEW_MAX_ROOMS", "")
	if _, err := LoadConfig([]string{"-room-idle-timeout", "0s"}); err == nil {
		t.Error("zero idle timeout should fail")
	}
}

func TestShareLink(t *testing.T) {
	got := shareLink("https://pew.example/", "my room")
	if got != "https://pew.example/?room=my+room" {
		t.Errorf("unexpected link %s", got)
	}
}
