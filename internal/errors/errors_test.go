package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, apperrors.Wrapf(nil, "context %d", 1))
	})

	t.Run("keeps the chain", func(t *testing.T) {
		err := apperrors.Wrapf(apperrors.ErrUpstreamUnavailable, "fetch profile %s", "kheyvarnish")
		require.EqualError(t, err, "fetch profile kheyvarnish: upstream unavailable")
		require.True(t, apperrors.Is(err, apperrors.ErrUpstreamUnavailable))
	})

	t.Run("double wrap matches both", func(t *testing.T) {
		err := fmt.Errorf("%w: %w", apperrors.ErrSubjectUnknown, apperrors.ErrRecipientUnresolvable)
		require.True(t, apperrors.Is(err, apperrors.ErrSubjectUnknown))
		require.True(t, apperrors.Is(err, apperrors.ErrRecipientUnresolvable))
	})
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d", e.status)
}

func TestAs(t *testing.T) {
	err := apperrors.Wrapf(&statusError{status: 429}, "send message")

	var target *statusError
	require.True(t, apperrors.As(err, &target))
	require.Equal(t, 429, target.status)

	require.False(t, apperrors.As(apperrors.ErrNotFound, &target))
}
