package cache

import (
	"testing"

	"skinbet/internal/config"
	"skinbet/internal/testing/containers"
)

func TestNew_Unreachable(t *testing.T) {
	svc, err := New(config.Redis{Addr: "127.0.0.1:1"})
	if err == nil {
		svc.Close()
		t.Fatal("expected an error for an unreachable redis")
	}
	if svc != nil {
		t.Error("service should be nil on error")
	}
}

func TestService_Health(t *testing.T) {
	addr := containers.Redis(t)

	svc, err := New(config.Redis{Addr: addr})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer svc.Close()

	stats := svc.Health()
	if stats["status"] != "up" {
		t.Fatalf("status = %s, want up (%s)", stats["status"], stats["error"])
	}
	if stats["message"] != "Redis is healthy" {
		t.Errorf("message = %q", stats["message"])
	}
	if _, ok := stats["total_conns"]; !ok {
		t.Error("pool stats missing from health report")
	}
}

func TestService_Interface(t *testing.T) {
	var _ Service = (*service)(nil)
}
