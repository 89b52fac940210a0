package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("body is not valid UTF-8")

// CheckStatus returns nil for a 2xx response. Otherwise it reads and closes
// the body and returns an *APIError carrying it verbatim.
func CheckStatus(resp *Response) error {
	if resp.OK() {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error body (status %d): %w", resp.StatusCode, err)
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}
}

// DecodeJSON consumes resp. A 2xx body is decoded into v; anything else is
// returned as an *APIError. op names the call in decoding errors.
func DecodeJSON(resp *Response, op string, v any) error {
	if err := CheckStatus(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}
	if !utf8.Valid(body) {
		return &DecodingError{Op: op, Err: errInvalidUTF8}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &DecodingError{Op: op, Err: err}
	}
	return nil
}
