package database

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/testhelper"
)

func TestConnectorWithDB(t *testing.T) {
	conn := NewConnectorWithDB(testhelper.NewTestDB(t))
	if err := conn.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
	conn.Close()
	if _, err := conn.DB(context.Background()); err != nil {
		t.Fatalf("borrowed connection must survive Close: %v", err)
	}
}

func TestConnectorNilConfig(t *testing.T) {
	conn := NewConnector(nil, nil)
	if _, err := conn.DB(context.Background()); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestShouldFallbackToLocalhost(t *testing.T) {
	dnsErr := &net.DNSError{Name: "postgres", Err: "no such host"}
	if !shouldFallbackToLocalhost(dnsErr, "postgres") {
		t.Fatalf("expected fallback for docker host name")
	}
	if shouldFallbackToLocalhost(dnsErr, "db.internal") {
		t.Fatalf("did not expect fallback for other hosts")
	}
	if shouldFallbackToLocalhost(errors.New("lookup postgres: no such host"), "localhost") {
		t.Fatalf("did not expect fallback for localhost")
	}
	if !shouldFallbackToLocalhost(errors.New("dial tcp: lookup postgres: no such host"), "postgres") {
		t.Fatalf("expected fallback on lookup message")
	}
}
