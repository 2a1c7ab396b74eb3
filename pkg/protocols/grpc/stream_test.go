package grpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateStreamID_ProducesDistinctIDs(t *testing.T) {
	a := generateStreamID()
	b := generateStreamID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "grpc-stream-")
}
