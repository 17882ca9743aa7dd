package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSeed = "JBSWY3DPEHPK3PXP"

func TestGenerateTOTPDeterministic(t *testing.T) {
	at := time.Date(2026, 8, 17, 10, 30, 15, 0, time.UTC)

	a, err := GenerateTOTP(testSeed, at)
	require.NoError(t, err)
	b, err := GenerateTOTP(testSeed, at.Add(5*time.Second)) // same 30s step
	require.NoError(t, err)

	require.Len(t, a, 6)
	require.Equal(t, a, b, "same seed and step must yield the same code")
}

func TestGenerateTOTPChangesAcrossSteps(t *testing.T) {
	at := time.Date(2026, 8, 17, 10, 30, 0, 0, time.UTC)
	a, err := GenerateTOTP(testSeed, at)
	require.NoError(t, err)
	b, err := GenerateTOTP(testSeed, at.Add(30*time.Second))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestValidateTOTPSkewTolerance(t *testing.T) {
	now := time.Date(2026, 8, 17, 10, 30, 0, 0, time.UTC)

	prev, err := GenerateTOTP(testSeed, now.Add(-30*time.Second))
	require.NoError(t, err)
	next, err := GenerateTOTP(testSeed, now.Add(30*time.Second))
	require.NoError(t, err)
	far, err := GenerateTOTP(testSeed, now.Add(90*time.Second))
	require.NoError(t, err)

	require.True(t, ValidateTOTP(prev, testSeed, now), "previous step inside ±1 tolerance")
	require.True(t, ValidateTOTP(next, testSeed, now), "next step inside ±1 tolerance")
	require.False(t, ValidateTOTP(far, testSeed, now), "three steps ahead must be rejected")
}
