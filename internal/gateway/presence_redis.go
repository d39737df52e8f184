package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresenceStore keeps room membership in redis with a TTL so a dead
// gateway instance's records age out on their own.
type RedisPresenceStore struct {
	client *redis.Client
}

func NewRedisPresenceStore(redisURL string) (*RedisPresenceStore, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisPresenceStore{client: client}, nil
}

type presenceRecord struct {
	MemberInfo
	OwnerInstance string `json:"owner_instance"`
}

func (s *RedisPresenceStore) Upsert(ctx context.Context, info MemberInfo, ownerInstanceID string, ttlSeconds int) error {
	if s == nil || s.client == nil {
		return nil
	}
	taskID := strings.TrimSpace(info.TaskID)
	if taskID == "" {
		return errors.New("task_id is required")
	}
	if ttlSeconds <= 0 {
		ttlSeconds = 15
	}
	ttl := time.Duration(ttlSeconds) * time.Second

	rec := presenceRecord{
		MemberInfo:    info,
		OwnerInstance: strings.TrimSpace(ownerInstanceID),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, presenceKey(taskID, info.SenderID), data, ttl).Err()
}

func (s *RedisPresenceStore) Delete(ctx context.Context, taskID, senderID string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if strings.TrimSpace(taskID) == "" {
		return nil
	}
	return s.client.Del(ctx, presenceKey(taskID, senderID)).Err()
}

func (s *RedisPresenceStore) List(ctx context.Context, taskID string) ([]MemberInfo, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	id := strings.TrimSpace(taskID)
	if id == "" {
		return nil, nil
	}
	keys, err := s.client.Keys(ctx, fmt.Sprintf("orbital:room:%s:*", id)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]MemberInfo, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var rec presenceRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, rec.MemberInfo)
	}
	return out, nil
}

func (s *RedisPresenceStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func presenceKey(taskID, senderID string) string {
	sender := strings.TrimSpace(senderID)
	if sender == "" {
		sender = "anonymous"
	}
	return fmt.Sprintf("orbital:room:%s:%s", strings.TrimSpace(taskID), sender)
}
