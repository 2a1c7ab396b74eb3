package http

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meshtest/harness/pkg/harness"
)

func TestMessageTypeMatcher_BracePathTemplate(t *testing.T) {
	match := MessageTypeMatcher("GET", "/users/{id}")

	assert.True(t, match(&harness.Message{Type: "GET /users/42"}))
	assert.False(t, match(&harness.Message{Type: "POST /users/42"}))
	assert.False(t, match(&harness.Message{Type: "GET /users/42/orders"}))
}

func TestMessageTypeMatcher_ColonPathTemplate(t *testing.T) {
	match := MessageTypeMatcher("delete", "/users/:id")

	assert.True(t, match(&harness.Message{Type: "DELETE /users/abc"}))
	assert.False(t, match(&harness.Message{Type: "DELETE /groups/abc"}))
}

func TestSplitMethodPath(t *testing.T) {
	method, path, err := splitMethodPath("GET /health")
	assert := assert.New(t)
	assert.NoError(err)
	assert.Equal("GET", method)
	assert.Equal("/health", path)

	_, _, err = splitMethodPath("not-a-valid-type")
	assert.Error(err)
}
