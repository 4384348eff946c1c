package xid

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewIsUUID(t *testing.T) {
	id := New()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	require.NotEqual(t, id, New())
}

func TestNextLogIDIsMonotonic(t *testing.T) {
	at := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	first := NextLogID(at, 0)
	require.Equal(t, at.UnixMilli(), first)
	require.Equal(t, first+1, NextLogID(at, first))
	require.Equal(t, first+6, NextLogID(at.Add(-time.Hour), first+5))
}
