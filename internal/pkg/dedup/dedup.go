// Package dedup 基于 Redis SETNX 判断某个 key 在一段时间内是否已经出现过。
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "taskmanager:dedup:"

// Deduplicator 在 TTL 内对同一 key 只放行一次。
type Deduplicator struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewDeduplicator 创建去重器，ttl 非正时默认 24 小时。
func NewDeduplicator(rdb *redis.Client, prefix string, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Deduplicator{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Seen 标记 key 并返回它在 TTL 内是否已经出现过。未配置 Redis 时总是返回 false。
func (d *Deduplicator) Seen(ctx context.Context, key string) (bool, error) {
	if d == nil || d.rdb == nil || key == "" {
		return false, nil
	}
	ok, err := d.rdb.SetNX(ctx, d.key(key), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

// Forget 清除 key 的标记。
func (d *Deduplicator) Forget(ctx context.Context, key string) error {
	if d == nil || d.rdb == nil || key == "" {
		return nil
	}
	if err := d.rdb.Del(ctx, d.key(key)).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

// key 对原始值做哈希，避免邮箱等明文出现在 Redis 中。
func (d *Deduplicator) key(raw string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(raw)))
	return d.prefix + hex.EncodeToString(sum[:])
}
