package contract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStatusAcceptsBothSpellings(t *testing.T) {
	s1, err := ParseStatus("cancelled")
	require.NoError(t, err)
	s2, err := ParseStatus("canceled")
	require.NoError(t, err)
	require.Equal(t, Cancelled, s1)
	require.Equal(t, Cancelled, s2)
}

func TestParseStatusCaseInsensitive(t *testing.T) {
	s, err := ParseStatus("REQUESTED")
	require.NoError(t, err)
	require.Equal(t, Requested, s)
}

func TestParseStatusInvalid(t *testing.T) {
	_, err := ParseStatus("completed")
	require.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	all := []Status{Requested, Pending, Accepted, Provisioning, Provisioned, Active, Rejected, Cancelled, Expired}
	for _, s := range all {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}
}

func TestValidTransitionsFromRequested(t *testing.T) {
	require.True(t, CanTransitionTo(Requested, Pending))
	require.True(t, CanTransitionTo(Requested, Accepted))
	require.True(t, CanTransitionTo(Requested, Rejected))
	require.True(t, CanTransitionTo(Requested, Cancelled))
	require.False(t, CanTransitionTo(Requested, Provisioning))
	require.False(t, CanTransitionTo(Requested, Active))
}

func TestValidTransitionsFromActive(t *testing.T) {
	require.True(t, CanTransitionTo(Active, Cancelled))
	require.True(t, CanTransitionTo(Active, Expired))
	require.False(t, CanTransitionTo(Active, Requested))
	require.False(t, CanTransitionTo(Active, Provisioned))
}

func TestTerminalStatesCannotTransition(t *testing.T) {
	all := []Status{Requested, Pending, Accepted, Provisioning, Provisioned, Active, Rejected, Cancelled, Expired}
	for _, terminal := range []Status{Rejected, Cancelled, Expired} {
		for _, target := range all {
			require.False(t, CanTransitionTo(terminal, target), "%s -> %s should be illegal", terminal, target)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	require.False(t, IsTerminal(Requested))
	require.False(t, IsTerminal(Active))
	require.True(t, IsTerminal(Rejected))
	require.True(t, IsTerminal(Cancelled))
	require.True(t, IsTerminal(Expired))
}

func TestIsCancellable(t *testing.T) {
	for _, s := range []Status{Requested, Pending, Accepted, Provisioning, Provisioned, Active} {
		require.True(t, IsCancellable(s), "%s should be cancellable", s)
	}
	for _, s := range []Status{Rejected, Cancelled, Expired} {
		require.False(t, IsCancellable(s), "%s should not be cancellable", s)
	}
}

func TestIsOperational(t *testing.T) {
	require.True(t, IsOperational(Provisioned))
	require.True(t, IsOperational(Active))
	for _, s := range []Status{Requested, Pending, Accepted, Provisioning, Rejected, Cancelled, Expired} {
		require.False(t, IsOperational(s), "%s should not be operational", s)
	}
}

func TestTransitionReturnsTypedError(t *testing.T) {
	_, err := Transition(Active, Requested)
	var target *ErrIllegalTransition
	require.True(t, errors.As(err, &target))
	require.Equal(t, Active, target.Current)
	require.Equal(t, Requested, target.Next)
}

func TestTransitionHappyPath(t *testing.T) {
	next, err := Transition(Requested, Accepted)
	require.NoError(t, err)
	require.Equal(t, Accepted, next)
}
