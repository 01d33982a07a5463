package anydb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSessionID_producesDistinctNonEmptyIDs(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	require.NotEqual(t, a, b)
	require.NotEmpty(t, a.String())
}

func TestDatabaseSession_stableAcrossCallsSameOpen(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, db.Session(), db.Session())
}
