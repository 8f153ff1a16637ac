package errcat

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCategory(t *testing.T) {
	assert.Equal(t, OK, GetCategory(nil))
	assert.Equal(t, Unknown, GetCategory(errors.New("plain")))
	assert.Nil(t, Network.New(nil))

	err := Network.New("device gone")
	assert.Equal(t, Network, GetCategory(err))
	assert.Equal(t, "device gone", err.Error())

	// Categories survive wrapping
	wrapped := fmt.Errorf("attempt failed: %w", err)
	assert.Equal(t, Network, GetCategory(wrapped))
	assert.True(t, Network.Is(wrapped))
	assert.False(t, Upstream.Is(wrapped))

	inner := errors.New("EOF")
	err = Upstream.Newf("receive: %w", inner)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "upstream", GetCategory(err).String())
}
