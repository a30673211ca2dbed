package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_UsesConfiguredCost(t *testing.T) {
	hash, err := HashPassword("Passw0rd!9")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, BcryptCost, cost)
	assert.True(t, ComparePassword(hash, "Passw0rd!9"))
	assert.False(t, ComparePassword(hash, "Passw0rd!8"))
	assert.False(t, ComparePassword("not-a-hash", "Passw0rd!9"))
}

func TestPushHistory(t *testing.T) {
	tests := []struct {
		name    string
		history []string
		hash    string
		want    []string
	}{
		{"empty", nil, "h1", []string{"h1"}},
		{"grows", []string{"h1"}, "h2", []string{"h2", "h1"}},
		{"fills", []string{"h2", "h1"}, "h3", []string{"h3", "h2", "h1"}},
		{"evicts oldest", []string{"h3", "h2", "h1"}, "h4", []string{"h4", "h3", "h2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PushHistory(tt.history, tt.hash)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), HistorySize)
		})
	}
}

func TestPushHistory_DoesNotMutateInput(t *testing.T) {
	history := []string{"h3", "h2", "h1"}
	_ = PushHistory(history, "h4")
	assert.Equal(t, []string{"h3", "h2", "h1"}, history)
}

func TestIsReused(t *testing.T) {
	var history []string
	for _, pw := range []string{"Passw0rd!9", "Secure12!", "Another!34"} {
		hash, err := HashPassword(pw)
		require.NoError(t, err)
		history = append(history, hash)
	}

	ctx := context.Background()
	for _, pw := range []string{"Passw0rd!9", "Secure12!", "Another!34"} {
		reused, err := IsReused(ctx, history, pw)
		require.NoError(t, err)
		assert.True(t, reused, pw)
	}

	reused, err := IsReused(ctx, history, "Fresh!Pass56")
	require.NoError(t, err)
	assert.False(t, reused)

	reused, err = IsReused(ctx, nil, "Passw0rd!9")
	require.NoError(t, err)
	assert.False(t, reused)
}

func TestIsReused_IgnoresCorruptEntries(t *testing.T) {
	hash, err := HashPassword("Passw0rd!9")
	require.NoError(t, err)

	reused, err := IsReused(context.Background(), []string{"garbage", hash}, "Passw0rd!9")
	require.NoError(t, err)
	assert.True(t, reused)
}

func TestIsReused_CancelledContext(t *testing.T) {
	hash, err := HashPassword("Passw0rd!9")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reused, err := IsReused(ctx, []string{hash}, "Other!Pass12")
	assert.False(t, reused)
	assert.ErrorIs(t, err, context.Canceled)
}
