package api

import (
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tellmeastory/zine-server/internal/http/response"
)

// EnvelopeVersion is the envelope format version clients check before parsing.
const EnvelopeVersion = response.Version

type (
	// APIEnvelope wraps successful responses and simple errors.
	APIEnvelope = response.Envelope //nolint:revive // API prefix is intentional for clarity
	// APIErrorEnvelope wraps errors that carry a code or details.
	APIErrorEnvelope = response.ErrorEnvelope //nolint:revive // API prefix is intentional for clarity
)

// EnvelopeTransformer wraps every huma response body in the versioned envelope.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	code, _ := strconv.Atoi(status)
	if code < 400 {
		return response.Success(v), nil
	}

	switch e := v.(type) {
	case *APIError:
		return response.Failure(e.Code, e.Message, e.Details), nil
	case error:
		return response.Failure("", e.Error(), nil), nil
	default:
		return response.Failure("", "request failed", nil), nil
	}
}
