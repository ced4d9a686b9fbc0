package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-autobook/internal/internaltypes"
)

func TestWrapNotFound(t *testing.T) {
	require.NoError(t, WrapNotFound(nil))
	require.ErrorIs(t, WrapNotFound(pgx.ErrNoRows), internaltypes.ErrNotFound)
	require.ErrorIs(t, WrapNotFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)), internaltypes.ErrNotFound)

	other := errors.New("connection reset")
	wrapped := WrapNotFound(other)
	require.ErrorIs(t, wrapped, other)
	require.EqualError(t, wrapped, "db: connection reset")
}

func TestIsNotFound(t *testing.T) {
	require.True(t, IsNotFound(pgx.ErrNoRows))
	require.True(t, IsNotFound(internaltypes.ErrNotFound))
	require.False(t, IsNotFound(errors.New("boom")))
	require.False(t, IsNotFound(nil))
}
