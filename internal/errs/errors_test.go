package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("fetch failed: %w", &NetworkError{Err: cause})

	assert.True(t, IsNetwork(err))
	assert.ErrorIs(t, err, cause)
}

func TestStatusErrorIsNotNetwork(t *testing.T) {
	err := &StatusError{Code: 500}
	assert.False(t, IsNetwork(err))
	assert.Contains(t, err.Error(), "500")
}

func TestTaxonomyIsDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrNotAuthenticated, ErrDeserialization))
	assert.False(t, errors.Is(ErrDeserialization, ErrInvalidTransition))
	assert.False(t, IsNetwork(ErrNotAuthenticated))
}
