package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mhminhas/thinklab/internal/pricing"
	"gorm.io/datatypes"
)

// ErrProviderFailure marks any upstream invocation error. The gateway
// compensates the reservation whenever it sees this.
var ErrProviderFailure = errors.New("provider_failure")

// Failure wraps an upstream error so callers can match on ErrProviderFailure.
func Failure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrProviderFailure, err)
}

// Provider executes a priced action against an upstream AI backend.
type Provider interface {
	Invoke(ctx context.Context, kind pricing.ActionKind, input datatypes.JSON) (datatypes.JSON, error)
}

// Request is the common payload shape accepted by all action kinds.
type Request struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// ParseRequest decodes and validates the raw action input.
func ParseRequest(input datatypes.JSON) (Request, error) {
	var req Request
	if len(input) > 0 {
		if err := json.Unmarshal(input, &req); err != nil {
			return Request{}, Failure(fmt.Errorf("decode input: %v", err))
		}
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return Request{}, Failure(errors.New("prompt is required"))
	}
	return req, nil
}

func marshalOutput(payload any) (datatypes.JSON, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, Failure(err)
	}
	return datatypes.JSON(raw), nil
}
