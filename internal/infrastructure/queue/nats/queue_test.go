package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/fin-extract/internal/core/domain"
)

func TestRequestCodecRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	payload, err := encodeRequest("https://files.example/a.csv", now)
	if err != nil {
		t.Fatalf("encodeRequest() error = %v", err)
	}

	got, err := decodeRequest(payload)
	if err != nil {
		t.Fatalf("decodeRequest() error = %v", err)
	}
	if got.SourceRef != "https://files.example/a.csv" || !got.RequestedAt.Equal(now) {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestDecodeBareSourceRef(t *testing.T) {
	got, err := decodeRequest([]byte(" https://files.example/a.png\n"))
	if err != nil || got.SourceRef != "https://files.example/a.png" {
		t.Fatalf("decodeRequest() = %+v, %v", got, err)
	}
}

func TestDecodeRejectsInvalidPayloads(t *testing.T) {
	for _, raw := range []string{"", "   ", "{", `{"requestedAt":"2024-03-01T12:00:00Z"}`} {
		if _, err := decodeRequest([]byte(raw)); err == nil {
			t.Fatalf("decodeRequest(%q) expected error", raw)
		}
	}
}

func TestPublishErrorKinds(t *testing.T) {
	err := publishError(nats.ErrConnectionClosed)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("closed connection must be temporary, got %v", err)
	}

	permanent := errors.New("invalid subject")
	if got := publishError(permanent); domain.IsKind(got, domain.ErrTemporary) {
		t.Fatalf("permanent error must not be temporary")
	}
	if got := classifyPublishError(context.Canceled); got.RecordFailure {
		t.Fatalf("cancellation must not count as failure")
	}
	if got := publishError(nats.ErrMaxPayload); !domain.IsKind(got, domain.ErrInvalidInput) {
		t.Fatalf("oversized payload must be invalid input, got %v", got)
	}
	if got := classifyPublishError(nats.ErrNoServers); !got.Retryable {
		t.Fatalf("no servers must be retryable")
	}
}
