package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fentz26/ntbk/internal/models"
)

const defaultRedisPrefix = "ntbk"

// RedisStore keeps each task as a JSON value under "<prefix>:task:<id>" and
// the submission order in the "<prefix>:tasks" list. Audit entries live in
// one list per task, "<prefix>:audit:<id>", indexed by the "<prefix>:audits"
// set. With a TTL every key expires; ids of expired records are pruned from
// the indexes as listings find them.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix overrides the key prefix (default "ntbk").
func WithRedisPrefix(p string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = p
	}
}

// WithTTL expires task records after d. Zero keeps them forever.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = d
	}
}

// NewRedis wraps an existing client. The caller owns connection setup;
// Close closes the client.
func NewRedis(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: defaultRedisPrefix}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) taskKey(id string) string  { return s.prefix + ":task:" + id }
func (s *RedisStore) orderKey() string          { return s.prefix + ":tasks" }
func (s *RedisStore) auditKey(id string) string { return s.prefix + ":audit:" + id }
func (s *RedisStore) auditIndexKey() string     { return s.prefix + ":audits" }

// touch refreshes the expiry of an index so it outlives its newest member.
func (s *RedisStore) touch(ctx context.Context, p redis.Pipeliner, key string) {
	if s.ttl > 0 {
		p.Expire(ctx, key, s.ttl)
	}
}

func (s *RedisStore) CreateTask(ctx context.Context, task *models.Task) error {
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	key := s.taskKey(task.ID)

	// The record and its index entry are written in one transaction.
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, s.ttl)
			p.RPush(ctx, s.orderKey(), task.ID)
			s.touch(ctx, p, s.orderKey())
			return nil
		})
		return err
	}, key)
	switch {
	case errors.Is(err, ErrDuplicate), errors.Is(err, redis.TxFailedErr):
		return ErrDuplicate
	case err != nil:
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *RedisStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	b, err := s.rdb.Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	var task models.Task
	if err := json.Unmarshal(b, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

func (s *RedisStore) UpdateTask(ctx context.Context, task *models.Task) error {
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	// XX: only overwrite an existing record.
	set := s.rdb.SetArgs(ctx, s.taskKey(task.ID), b, redis.SetArgs{Mode: "XX", TTL: s.ttl})
	if err := set.Err(); errors.Is(err, redis.Nil) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if s.ttl > 0 {
		if err := s.rdb.Expire(ctx, s.orderKey(), s.ttl).Err(); err != nil {
			return fmt.Errorf("refresh task index: %w", err)
		}
	}
	return nil
}

// ListTasks skips IDs whose records have expired.
func (s *RedisStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	ids, err := s.rdb.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list task ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.taskKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}

	tasks := make([]models.Task, 0, len(vals))
	var expired []string
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var task models.Task
		if err := json.Unmarshal([]byte(str), &task); err != nil {
			return nil, fmt.Errorf("unmarshal task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := s.prune(ctx, s.orderKey(), expired); err != nil {
		return nil, fmt.Errorf("prune task ids: %w", err)
	}
	return tasks, nil
}

// prune drops expired ids from the order list.
func (s *RedisStore) prune(ctx context.Context, key string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			p.LRem(ctx, key, 1, id)
		}
		return nil
	})
	return err
}

func (s *RedisStore) WriteAudit(ctx context.Context, entry *models.AuditEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}
	key := s.auditKey(entry.TaskID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, b)
		p.SAdd(ctx, s.auditIndexKey(), entry.TaskID)
		s.touch(ctx, p, key)
		s.touch(ctx, p, s.auditIndexKey())
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// ListAudit returns one task's entries in write order, or every entry by
// timestamp when taskID is empty.
func (s *RedisStore) ListAudit(ctx context.Context, taskID string) ([]models.AuditEntry, error) {
	if taskID != "" {
		raw, err := s.rdb.LRange(ctx, s.auditKey(taskID), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("list audit: %w", err)
		}
		return decodeAudit(nil, raw)
	}

	ids, err := s.rdb.SMembers(ctx, s.auditIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list audit index: %w", err)
	}
	sort.Strings(ids)

	cmds := make([]*redis.StringSliceCmd, len(ids))
	if _, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.LRange(ctx, s.auditKey(id), 0, -1)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}

	var out []models.AuditEntry
	var expired []any
	for i, cmd := range cmds {
		raw := cmd.Val()
		if len(raw) == 0 {
			expired = append(expired, ids[i])
			continue
		}
		if out, err = decodeAudit(out, raw); err != nil {
			return nil, err
		}
	}
	if len(expired) > 0 {
		if err := s.rdb.SRem(ctx, s.auditIndexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("prune audit index: %w", err)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func decodeAudit(out []models.AuditEntry, raw []string) ([]models.AuditEntry, error) {
	for _, r := range raw {
		var e models.AuditEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("unmarshal audit: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
