package metrics

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("action_kind", "text_generation"),
		attribute.String("account_id", "456"),
		attribute.String("status", "committed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "action_kind" && attrs[1].Key != "action_kind" {
		t.Fatalf("expected action_kind to be retained")
	}
	if attrs[0].Key != "status" && attrs[1].Key != "status" {
		t.Fatalf("expected status to be retained")
	}
}

func TestClassifySweepErrorType(t *testing.T) {
	if got := ClassifySweepErrorType(context.DeadlineExceeded); got != SweepErrorTypeDeadlineExceeded {
		t.Fatalf("expected deadline_exceeded, got %s", got)
	}
	if got := ClassifySweepErrorType(gorm.ErrInvalidTransaction); got != SweepErrorTypeDB {
		t.Fatalf("expected db, got %s", got)
	}
	if got := ClassifySweepErrorType(errors.New("refund rejected")); got != SweepErrorTypeBusinessRule {
		t.Fatalf("expected business_rule, got %s", got)
	}
	if got := ClassifySweepErrorType(nil); got != SweepErrorTypeUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
}
