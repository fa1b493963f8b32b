package relay

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRejected(t *testing.T) {
	base := errors.New("550 no such user")
	err := Rejected(base)
	assert.True(t, IsRejected(err))
	assert.ErrorIs(t, err, base)
	assert.True(t, IsRejected(fmt.Errorf("deliver: %w", err)))

	assert.False(t, IsRejected(base))
	assert.NoError(t, Rejected(nil))
}
