package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfUnwrapsStandardErrors(t *testing.T) {
	wrapped := Wrap(NotFound, "transaction 7 not found", errors.New("no rows"))
	require.Equal(t, NotFound, KindOf(wrapped))
	require.True(t, Is(wrapped, NotFound))
	require.False(t, Is(wrapped, Internal))
}

func TestKindOfDefaultsToInternalForPlainErrors(t *testing.T) {
	require.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Internal, "store fx rate", cause)
	require.Contains(t, err.Error(), "store fx rate")
	require.Contains(t, err.Error(), "connection refused")
	require.ErrorIs(t, err, cause)
}

func TestNewHasNoCause(t *testing.T) {
	err := New(InvalidInput, "unsupported currency")
	require.Equal(t, "unsupported currency", err.Error())
	require.Nil(t, err.Unwrap())
}
