package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/mhminhas/thinklab/internal/pricing"
	"gorm.io/datatypes"
)

var errEmptyCompletion = errors.New("empty completion")

// Static answers every invocation with a canned payload. Used for local
// development and tests when no upstream credentials are configured.
type Static struct{}

func (Static) Invoke(_ context.Context, kind pricing.ActionKind, input datatypes.JSON) (datatypes.JSON, error) {
	req, err := ParseRequest(input)
	if err != nil {
		return nil, err
	}
	return marshalOutput(map[string]any{
		"content": fmt.Sprintf("[%s] %s", kind, req.Prompt),
		"model":   "static",
	})
}
