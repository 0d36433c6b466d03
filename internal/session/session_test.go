package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyString(t *testing.T) {
	k := Key{Year: 2024, Round: 5, SessionType: TypeRace}
	require.Equal(t, "2024_5_R", k.String())
}

func TestSessionTypeValid(t *testing.T) {
	require.True(t, TypeQualifying.Valid())
	require.False(t, Type("XX").Valid())
}

func TestNewSessionLifecycle(t *testing.T) {
	s := NewSession(Key{Year: 2023, Round: 1, SessionType: TypeRace})

	require.False(t, s.IsLoaded())
	require.Equal(t, 0, s.Progress())
	require.Equal(t, "queued", s.LoadingStatus())
	require.Nil(t, s.LoadError())

	s.SetProgress(42, "fetching stream_timing")
	require.Equal(t, 42, s.Progress())
	require.Equal(t, "fetching stream_timing", s.LoadingStatus())
	require.False(t, s.IsLoaded())

	s.MarkLoaded()
	require.True(t, s.IsLoaded())
	require.Equal(t, 100, s.Progress())
	require.Nil(t, s.LoadError())
}

func TestSessionMarkFailed(t *testing.T) {
	s := NewSession(Key{Year: 2023, Round: 1, SessionType: TypeQualifying})
	cause := errors.New("upstream timeout")

	s.MarkFailed(cause)

	require.True(t, s.IsLoaded(), "a failed load is still terminal/loaded")
	require.ErrorIs(t, s.LoadError(), cause)
	require.Equal(t, "upstream timeout", s.LoadingStatus())
}
