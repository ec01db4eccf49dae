package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	errs "buildsite/pkg/errors"
)

// maxPreviewLength bounds the body excerpt logged when decoding fails
const maxPreviewLength = 200

// DoJSON executes spec and decodes a 2xx body into target. Non-2xx responses
// become http_status errors carrying the server's message when the body has
// one; undecodable bodies become parse_failure errors. An empty body or 204
// leaves target untouched.
func (c *Client) DoJSON(ctx context.Context, spec RequestSpec, target any) error {
	if spec.Header == nil {
		spec.Header = http.Header{}
	} else {
		spec.Header = spec.Header.Clone()
	}
	if spec.Header.Get("Accept") == "" {
		spec.Header.Set("Accept", "application/json")
	}
	if spec.Body != nil && spec.Header.Get("Content-Type") == "" {
		spec.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Execute(ctx, spec)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return errs.NewNetworkUnreachable(spec.URL, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errs.NewHTTPStatus(resp.StatusCode, errorMessage(body))
	}

	if resp.StatusCode == http.StatusNoContent || len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, target); err != nil {
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"status":  resp.StatusCode,
			"preview": preview(body),
			"error":   err.Error(),
		})
		return errs.NewParseFailure(resp.StatusCode, err)
	}
	return nil
}

// FetchJSON is the typed form of DoJSON
func FetchJSON[T any](ctx context.Context, c *Client, spec RequestSpec) (T, error) {
	var result T
	if err := c.DoJSON(ctx, spec, &result); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// JSONBody marshals v for use as RequestSpec.Body
func JSONBody(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return body, nil
}

// errorMessage pulls a human message out of an error body. It accepts
// {"message": "..."}, {"error": "..."} and {"error": {"message": "..."}};
// anything else yields "" so the status text is used instead.
func errorMessage(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	if len(payload.Error) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(payload.Error, &text); err == nil {
		return text
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}

func preview(body []byte) string {
	text := string(body)
	if len(text) > maxPreviewLength {
		return text[:maxPreviewLength] + "..."
	}
	return text
}
