package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func response(status int, body string) (*Response, *trackingBody) {
	tb := &trackingBody{Reader: strings.NewReader(body)}
	return &Response{StatusCode: status, Body: tb, Channel: ChannelLocal}, tb
}

func TestDecodeJSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		resp, body := response(http.StatusOK, `{"name":"llama"}`)

		var out struct {
			Name string `json:"name"`
		}
		require.NoError(t, DecodeJSON(resp, "get_llm_status", &out))
		assert.Equal(t, "llama", out.Name)
		assert.True(t, body.closed)
	})

	t.Run("any 2xx", func(t *testing.T) {
		resp, _ := response(http.StatusCreated, `[]`)
		var out []string
		assert.NoError(t, DecodeJSON(resp, "get_running_llms", &out))
	})

	t.Run("not found", func(t *testing.T) {
		resp, body := response(http.StatusNotFound, "llm not found")

		err := DecodeJSON(resp, "load_llm", &struct{}{})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "llm not found", apiErr.Message)
		assert.True(t, IsNotFound(err))
		assert.False(t, IsUnauthorized(err))
		assert.True(t, body.closed)
	})

	t.Run("unauthorized", func(t *testing.T) {
		resp, _ := response(http.StatusUnauthorized, "unauthorized")
		err := DecodeJSON(resp, "load_llm", &struct{}{})
		assert.True(t, IsUnauthorized(err))
		assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	})

	t.Run("invalid utf8", func(t *testing.T) {
		resp, _ := response(http.StatusOK, "\"\xff\xfe\"")
		err := DecodeJSON(resp, "register_user", new(string))

		var decErr *DecodingError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, "register_user", decErr.Op)
	})

	t.Run("invalid json", func(t *testing.T) {
		resp, _ := response(http.StatusOK, `{"name":`)
		err := DecodeJSON(resp, "register_user", &struct{}{})

		var decErr *DecodingError
		assert.ErrorAs(t, err, &decErr)
		assert.Equal(t, 0, StatusCode(err))
	})
}

func TestCheckStatus(t *testing.T) {
	resp, body := response(http.StatusOK, "data: x\n\n")
	require.NoError(t, CheckStatus(resp))
	assert.False(t, body.closed, "a 2xx body is left for the caller")

	resp, body = response(http.StatusForbidden, "missing perm_session")
	err := CheckStatus(resp)
	assert.Equal(t, &APIError{StatusCode: http.StatusForbidden, Message: "missing perm_session"}, err)
	assert.True(t, body.closed)
}

func TestStatusCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("create session: %w", &APIError{StatusCode: 404, Message: "llm not found"})
	assert.Equal(t, 404, StatusCode(err))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
}
