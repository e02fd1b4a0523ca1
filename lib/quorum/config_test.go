package quorum

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"default", DefaultConfig(), true},
		{"single node", Config{N: 1, W: 1, R: 1, Timeout: time.Second}, true},
		{"n5 w3 r3", Config{N: 5, W: 3, R: 3, Timeout: time.Second}, true},
		{"all acks", Config{N: 3, W: 3, R: 1, Timeout: time.Second}, true},
		{"zero n", Config{N: 0, W: 1, R: 1, Timeout: time.Second}, false},
		{"zero w", Config{N: 3, W: 0, R: 3, Timeout: time.Second}, false},
		{"w exceeds n", Config{N: 3, W: 4, R: 3, Timeout: time.Second}, false},
		{"zero r", Config{N: 3, W: 3, R: 0, Timeout: time.Second}, false},
		{"r exceeds n", Config{N: 3, W: 3, R: 4, Timeout: time.Second}, false},
		{"no intersection", Config{N: 3, W: 1, R: 1, Timeout: time.Second}, false},
		{"boundary w+r=n", Config{N: 4, W: 2, R: 2, Timeout: time.Second}, false},
		{"no timeout", Config{N: 3, W: 2, R: 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate(%v) = %v, want nil", tt.cfg, err)
			}
			if !tt.ok {
				if err == nil {
					t.Errorf("Validate(%v) accepted an unsafe configuration", tt.cfg)
				} else if !errors.Is(err, ErrInvalidQuorumConfig) {
					t.Errorf("Validate(%v) = %v, want ErrInvalidQuorumConfig", tt.cfg, err)
				}
			}
		})
	}
}

func TestNewCoordinatorRejectsInvalidConfig(t *testing.T) {
	cfg := Config{N: 3, W: 1, R: 1, Timeout: time.Second}
	if _, err := NewCoordinator(cfg, "n1", nil, nil, nil); !errors.Is(err, ErrInvalidQuorumConfig) {
		t.Errorf("NewCoordinator accepted w+r<=n: %v", err)
	}
}
