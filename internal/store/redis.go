package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"racing-gateway/internal/common/errors"
	"racing-gateway/internal/redis"
)

const (
	tokenKeyPrefix      = "token:"
	identifierKeyPrefix = "custid:"
	profileKeyPrefix    = "profile:"
)

// RedisTokenStore persists token records in the shared Redis store.
type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) Load(ctx context.Context, username string) (*TokenRecord, error) {
	var record TokenRecord
	err := s.client.GetJSON(ctx, tokenKeyPrefix+username, &record)
	if err != nil {
		if redis.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.StorageError("failed to load token record", err)
	}
	return &record, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, username string, record *TokenRecord) error {
	// Physical TTL is hygiene only; readers re-check the expiries themselves.
	ttl := time.Until(record.AccessExpiry)
	if record.RefreshValid(time.Now()) {
		ttl = time.Until(record.RefreshExpiry)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	if err := s.client.Set(ctx, tokenKeyPrefix+username, record, ttl); err != nil {
		return errors.StorageError("failed to save token record", err)
	}
	return nil
}

// RedisIdentifierStore persists resolved customer IDs in the shared Redis store.
type RedisIdentifierStore struct {
	client *redis.Client
}

func NewRedisIdentifierStore(client *redis.Client) *RedisIdentifierStore {
	return &RedisIdentifierStore{client: client}
}

func (s *RedisIdentifierStore) Get(ctx context.Context, name string) (int64, bool, error) {
	value, err := s.client.Get(ctx, identifierKeyPrefix+name)
	if err != nil {
		if redis.IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, errors.StorageError("failed to load identifier record", err)
	}

	custID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, errors.StorageError(fmt.Sprintf("malformed identifier record for %q", name), err)
	}
	return custID, true, nil
}

func (s *RedisIdentifierStore) Put(ctx context.Context, name string, custID int64) error {
	if err := s.client.Set(ctx, identifierKeyPrefix+name, strconv.FormatInt(custID, 10), 0); err != nil {
		return errors.StorageError("failed to save identifier record", err)
	}
	return nil
}

// RedisProfileStore persists profile documents in the shared Redis store.
type RedisProfileStore struct {
	client *redis.Client
}

func NewRedisProfileStore(client *redis.Client) *RedisProfileStore {
	return &RedisProfileStore{client: client}
}

func (s *RedisProfileStore) Get(ctx context.Context, name string) (json.RawMessage, bool, error) {
	var record profileRecord
	err := s.client.GetJSON(ctx, profileKeyPrefix+name, &record)
	if err != nil {
		if redis.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, errors.StorageError("failed to load profile record", err)
	}

	// A record is only trusted while its expiry is in the future, even
	// if the engine has not yet physically evicted it.
	if !time.Now().Before(record.Expiry) {
		return nil, false, nil
	}
	return record.Profile, true, nil
}

func (s *RedisProfileStore) Put(ctx context.Context, name string, profile json.RawMessage, ttl time.Duration) error {
	record := profileRecord{
		Profile: profile,
		Expiry:  time.Now().Add(ttl),
	}
	if err := s.client.Set(ctx, profileKeyPrefix+name, record, ttl); err != nil {
		return errors.StorageError("failed to save profile record", err)
	}
	return nil
}
