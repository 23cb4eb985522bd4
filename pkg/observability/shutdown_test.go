package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestShutdownManager_RunsStepsNewestFirst(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, time.Second)

	var order []string
	sm.Register("database", func(ctx context.Context) error {
		order = append(order, "database")
		return nil
	})
	sm.Register("notifier", func(ctx context.Context) error {
		order = append(order, "notifier")
		return nil
	})

	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if strings.Join(order, ",") != "notifier,database" {
		t.Errorf("Expected notifier then database, got %v", order)
	}
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, time.Second)
	sm.Register("redis", func(ctx context.Context) error { return errors.New("already closed") })
	sm.Register("ok", func(ctx context.Context) error { return nil })

	err := sm.Shutdown()
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !strings.Contains(err.Error(), "redis: already closed") {
		t.Errorf("Expected step name in error, got %v", err)
	}
}

func TestShutdownManager_WaitForShutdownOnContextCancel(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), server, time.Second)

	called := make(chan struct{})
	sm.Register("flush", func(ctx context.Context) error {
		close(called)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sm.WaitForShutdown(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForShutdown did not return")
	}

	select {
	case <-called:
	default:
		t.Error("Expected shutdown step to run")
	}
}
