package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// opCountTTL 是操作计数器的过期时间，长时间无人编辑的房间计数自然清零
const opCountTTL = time.Hour

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	return &RedisStateRepository{client: client, keyPrefix: normalizePrefix(keyPrefix)}
}

// normalizePrefix 返回默认前缀 "wb:"，并保证以冒号结尾
func normalizePrefix(p string) string {
	if p == "" {
		return "wb:"
	}
	if p[len(p)-1] != ':' {
		return p + ":"
	}
	return p
}

// --- Key Generation Helpers ---

func roomKey(prefix, roomID, suffix string) string {
	return fmt.Sprintf("%sroom:%s:%s", prefix, roomID, suffix)
}

func (r *RedisStateRepository) roomOpCountKey(roomID string) string {
	return roomKey(r.keyPrefix, roomID, "op_count")
}

func (r *RedisStateRepository) roomSnapshotCacheKey(roomID string) string {
	return roomKey(r.keyPrefix, roomID, "snapshot")
}

func (r *RedisStateRepository) roomLastSnapshotKey(roomID string) string {
	return roomKey(r.keyPrefix, roomID, "last_snapshot")
}

func (r *RedisStateRepository) rateLimitKey(key string) string {
	return r.keyPrefix + "ratelimit:" + key
}

// --- StateRepository Interface Implementation ---

// IncrementOpCount 原子地增加房间的操作计数器
func (r *RedisStateRepository) IncrementOpCount(ctx context.Context, roomID string) error {
	key := r.roomOpCountKey(roomID)
	pipe := r.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, opCountTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to increment op count for room %s on key %s: %w", roomID, key, err)
	}
	return nil
}

// GetOpCount 读取操作计数，key 不存在视为 0
func (r *RedisStateRepository) GetOpCount(ctx context.Context, roomID string) (int64, error) {
	key := r.roomOpCountKey(roomID)
	n, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis: failed to get op count for room %s from %s: %w", roomID, key, err)
	}
	return n, nil
}

// ResetOpCount 重置房间的操作计数器
func (r *RedisStateRepository) ResetOpCount(ctx context.Context, roomID string) error {
	key := r.roomOpCountKey(roomID)
	if err := r.client.Set(ctx, key, "0", opCountTTL).Err(); err != nil {
		return fmt.Errorf("redis: failed to reset op count for room %s on key %s: %w", roomID, key, err)
	}
	return nil
}

// CleanupRoomState 删除房间相关的计数和缓存
func (r *RedisStateRepository) CleanupRoomState(ctx context.Context, roomID string) error {
	keys := []string{
		r.roomOpCountKey(roomID),
		r.roomSnapshotCacheKey(roomID),
		r.roomLastSnapshotKey(roomID),
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: failed to cleanup state for room %s: %w", roomID, err)
	}
	return nil
}

// GetSnapshotCache 尝试从 Redis 缓存中获取快照
func (r *RedisStateRepository) GetSnapshotCache(ctx context.Context, roomID string) (*domain.Snapshot, error) {
	key := r.roomSnapshotCacheKey(roomID)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis: failed to get snapshot cache for room %s from %s: %w", roomID, key, err)
	}
	snapshot, err := decodeSnapshot(raw)
	if err != nil {
		return nil, fmt.Errorf("redis: snapshot cache for room %s: %w", roomID, err)
	}
	return snapshot, nil
}

// SetSnapshotCache 将快照存入 Redis 缓存，ttl 为 0 时永不过期
func (r *RedisStateRepository) SetSnapshotCache(ctx context.Context, roomID string, snapshot *domain.Snapshot, ttl time.Duration) error {
	key := r.roomSnapshotCacheKey(roomID)
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal snapshot for cache (room %s, version %d): %w", roomID, snapshot.Version, err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set snapshot cache for room %s on key %s: %w", roomID, key, err)
	}
	return nil
}

// CheckRateLimit 固定窗口计数：INCR 后刷新过期时间，计数大于 limit 即超限
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error) {
	fullKey := r.rateLimitKey(key)
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, duration)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", fullKey, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", fullKey, err)
	}
	return count > int64(limit), nil
}

// GetLastSnapshotTime 获取房间上次快照的时间，没有记录时返回零值
func (r *RedisStateRepository) GetLastSnapshotTime(ctx context.Context, roomID string) (time.Time, error) {
	key := r.roomLastSnapshotKey(roomID)
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("redis: failed to get last snapshot time for room %s: %w", roomID, err)
	}
	return parseUnixMilli(raw)
}

// SetLastSnapshotTime 以毫秒时间戳记录上次快照的时间
func (r *RedisStateRepository) SetLastSnapshotTime(ctx context.Context, roomID string, timestamp time.Time, ttl time.Duration) error {
	key := r.roomLastSnapshotKey(roomID)
	if err := r.client.Set(ctx, key, formatUnixMilli(timestamp), ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set last snapshot time for room %s: %w", roomID, err)
	}
	return nil
}

// --- codec ---

func decodeSnapshot(raw []byte) (*domain.Snapshot, error) {
	var snapshot domain.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

func formatUnixMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseUnixMilli(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: invalid timestamp %q: %w", raw, err)
	}
	return time.UnixMilli(ms), nil
}
