package database

import (
	"context"
	"testing"
)

func TestConnectRequiresURL(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}); err == nil {
		t.Error("Connect accepted an empty URL")
	}
}

func TestDefaultConfigPoolSizing(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxConnections <= 0 || cfg.MaxIdleConnections <= 0 {
		t.Errorf("pool sizes not set: %+v", cfg)
	}
	if cfg.MaxIdleConnections > cfg.MaxConnections {
		t.Errorf("idle connections %d exceed max %d", cfg.MaxIdleConnections, cfg.MaxConnections)
	}
	if cfg.ConnMaxLifetime <= 0 || cfg.ConnectTimeout <= 0 {
		t.Errorf("timeouts not set: %+v", cfg)
	}
}
