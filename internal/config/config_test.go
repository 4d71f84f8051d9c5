package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WAGATE_JWT_SECRET", "s3cret")

	cfg := Load()

	if cfg.Port != "3000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.DataDir != ".wagate" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.StorageBackend != "memory" {
		t.Errorf("StorageBackend = %q", cfg.StorageBackend)
	}
	if cfg.QRTimeout != 60*time.Second {
		t.Errorf("QRTimeout = %s", cfg.QRTimeout)
	}
	if cfg.FFmpegBin != "ffmpeg" {
		t.Errorf("FFmpegBin = %q", cfg.FFmpegBin)
	}
	if cfg.DebugQR {
		t.Errorf("DebugQR default must be false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WAGATE_JWT_SECRET", "s3cret")
	t.Setenv("WAGATE_PORT", "8080")
	t.Setenv("WAGATE_WEBHOOK_URL", "https://hooks.example.com/in")
	t.Setenv("WAGATE_QR_TIMEOUT", "90")
	t.Setenv("WAGATE_DEBUG_QR", "true")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.WebhookURL != "https://hooks.example.com/in" {
		t.Errorf("WebhookURL = %q", cfg.WebhookURL)
	}
	if cfg.QRTimeout != 90*time.Second {
		t.Errorf("bare seconds not accepted: %s", cfg.QRTimeout)
	}
	if !cfg.DebugQR {
		t.Errorf("DebugQR = false")
	}
}

func TestQRTimeoutAcceptsGoDurations(t *testing.T) {
	t.Setenv("WAGATE_JWT_SECRET", "s3cret")
	t.Setenv("WAGATE_QR_TIMEOUT", "2m30s")

	if cfg := Load(); cfg.QRTimeout != 2*time.Minute+30*time.Second {
		t.Errorf("QRTimeout = %s", cfg.QRTimeout)
	}
}
