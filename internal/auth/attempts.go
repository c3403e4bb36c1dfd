package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptStore はIP単位のログイン失敗回数とロックアウト状態を管理します。
type AttemptStore interface {
	// CheckLock はロック中の場合に残り時間を返します（ロックなしは 0）。
	CheckLock(ctx context.Context, ip string) (time.Duration, error)
	// RecordFailure は失敗を記録し、残り試行回数を返します。
	RecordFailure(ctx context.Context, ip string) (int, error)
	// Reset はログイン成功時に状態を消去します。
	Reset(ctx context.Context, ip string) error
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// MemoryAttemptStore はプロセス内マップによる実装です（単一プロセス向け）。
type MemoryAttemptStore struct {
	lock     sync.Mutex
	attempts map[string]*attemptState
	now      func() time.Time
}

// NewMemoryAttemptStore は MemoryAttemptStore を作成します。
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		attempts: make(map[string]*attemptState),
		now:      time.Now,
	}
}

func (s *MemoryAttemptStore) CheckLock(ctx context.Context, ip string) (time.Duration, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	state, ok := s.attempts[ip]
	if !ok {
		return 0, nil
	}
	now := s.now()
	if now.After(state.lockedUntil) {
		return 0, nil
	}
	return state.lockedUntil.Sub(now), nil
}

func (s *MemoryAttemptStore) RecordFailure(ctx context.Context, ip string) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.now()
	state, ok := s.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		s.attempts[ip] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}

	remaining := maxLoginAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *MemoryAttemptStore) Reset(ctx context.Context, ip string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.attempts, ip)
	return nil
}

const (
	attemptKeyPrefix = "login_attempts:"
	lockKeyPrefix    = "login_lock:"
)

// RedisAttemptStore は Redis による実装です。複数プロセスで状態を共有できます。
type RedisAttemptStore struct {
	rdb *redis.Client
}

// NewRedisAttemptStore は RedisAttemptStore を作成します。
func NewRedisAttemptStore(rdb *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{rdb: rdb}
}

func (s *RedisAttemptStore) CheckLock(ctx context.Context, ip string) (time.Duration, error) {
	ttl, err := s.rdb.PTTL(ctx, lockKeyPrefix+ip).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisAttemptStore) RecordFailure(ctx context.Context, ip string) (int, error) {
	key := attemptKeyPrefix + ip
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// 初回失敗時にウィンドウのTTLを設定する
	if count == 1 {
		if err := s.rdb.Expire(ctx, key, loginWindow).Err(); err != nil {
			return 0, err
		}
	}

	if count >= int64(maxLoginAttempts) {
		if err := s.rdb.Set(ctx, lockKeyPrefix+ip, "1", lockDuration).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}

	remaining := maxLoginAttempts - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *RedisAttemptStore) Reset(ctx context.Context, ip string) error {
	return s.rdb.Del(ctx, attemptKeyPrefix+ip, lockKeyPrefix+ip).Err()
}
