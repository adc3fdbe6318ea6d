package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racing-gateway/internal/redis"
)

func setupClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redis.NewClient(&redis.Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestTokenRecord_Validity(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name         string
		record       TokenRecord
		accessValid  bool
		refreshValid bool
	}{
		{
			name: "both live",
			record: TokenRecord{
				AccessToken:   "at",
				AccessExpiry:  now.Add(10 * time.Minute),
				RefreshToken:  "rt",
				RefreshExpiry: now.Add(7 * 24 * time.Hour),
			},
			accessValid:  true,
			refreshValid: true,
		},
		{
			name: "access expired, refresh live",
			record: TokenRecord{
				AccessToken:   "at",
				AccessExpiry:  now.Add(-time.Minute),
				RefreshToken:  "rt",
				RefreshExpiry: now.Add(time.Hour),
			},
			accessValid:  false,
			refreshValid: true,
		},
		{
			name: "no refresh token",
			record: TokenRecord{
				AccessToken:  "at",
				AccessExpiry: now.Add(time.Minute),
			},
			accessValid:  true,
			refreshValid: false,
		},
		{
			name:   "empty record",
			record: TokenRecord{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.accessValid, tt.record.AccessValid(now))
			assert.Equal(t, tt.refreshValid, tt.record.RefreshValid(now))
		})
	}
}

func TestRedisTokenStore_RoundTrip(t *testing.T) {
	client, _ := setupClient(t)
	s := NewRedisTokenStore(client)
	ctx := context.Background()

	record := &TokenRecord{
		AccessToken:   "access-abc",
		TokenType:     "Bearer",
		Scope:         "racing.auth",
		AccessExpiry:  time.Now().Add(10 * time.Minute).Truncate(time.Second),
		RefreshToken:  "refresh-def",
		RefreshExpiry: time.Now().Add(7 * 24 * time.Hour).Truncate(time.Second),
	}

	require.NoError(t, s.Save(ctx, "driver@example.com", record))

	loaded, err := s.Load(ctx, "driver@example.com")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, record.AccessToken, loaded.AccessToken)
	assert.Equal(t, record.RefreshToken, loaded.RefreshToken)
	assert.True(t, record.AccessExpiry.Equal(loaded.AccessExpiry))
}

func TestRedisTokenStore_LoadAbsent(t *testing.T) {
	client, _ := setupClient(t)
	s := NewRedisTokenStore(client)

	loaded, err := s.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisIdentifierStore(t *testing.T) {
	client, _ := setupClient(t)
	s := NewRedisIdentifierStore(client)
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		_, found, err := s.Get(ctx, "Unknown Driver")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("write then read", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "Dale Jr", 123456))

		custID, found, err := s.Get(ctx, "Dale Jr")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(123456), custID)
	})
}

func TestRedisProfileStore_TTL(t *testing.T) {
	client, mr := setupClient(t)
	s := NewRedisProfileStore(client)
	ctx := context.Background()

	profile := json.RawMessage(`{"cust_id":42,"display_name":"Bob"}`)
	require.NoError(t, s.Put(ctx, "Bob", profile, time.Hour))

	t.Run("served while fresh", func(t *testing.T) {
		got, found, err := s.Get(ctx, "Bob")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, string(profile), string(got))
	})

	t.Run("treated as absent after expiry even if still stored", func(t *testing.T) {
		// Rewrite the record with a past expiry but no physical eviction,
		// mimicking a store that has not cleaned up yet.
		record := profileRecord{Profile: profile, Expiry: time.Now().Add(-time.Second)}
		data, err := json.Marshal(record)
		require.NoError(t, err)
		mr.Set("profile:Bob", string(data))

		_, found, err := s.Get(ctx, "Bob")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestRedisProfileStore_Miss(t *testing.T) {
	client, _ := setupClient(t)
	s := NewRedisProfileStore(client)

	_, found, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)
}
