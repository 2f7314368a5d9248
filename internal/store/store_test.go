package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/ntbk/internal/models"
)

func newTask(id string) *models.Task {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Task{
		ID:            id,
		Intent:        models.IntentDraft,
		Topic:         "Caching",
		PromptContext: "Explain the cache layer",
		AgentConfig:   models.AgentConfig{Model: "m", Temperature: 0.2, MaxTokens: 128, TimeoutSeconds: 30},
		ToolEndpoints: map[string]string{"search": "http://tools/search"},
		Status:        models.TaskStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

type storeFactory func(t *testing.T) Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemory()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "tasks.db"))
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			return NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		},
	}
}

func TestStores(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, factory(t)) })
			t.Run("Duplicate", func(t *testing.T) { testDuplicate(t, factory(t)) })
			t.Run("NotFound", func(t *testing.T) { testNotFound(t, factory(t)) })
			t.Run("UpdateResult", func(t *testing.T) { testUpdateResult(t, factory(t)) })
			t.Run("ListOrder", func(t *testing.T) { testListOrder(t, factory(t)) })
			t.Run("Audit", func(t *testing.T) { testAudit(t, factory(t)) })
			t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, factory(t)) })
		})
	}
}

func testCreateGet(t *testing.T, s Store) {
	defer s.Close()
	ctx := context.Background()

	in := newTask("t-1")
	require.NoError(t, s.CreateTask(ctx, in))

	got, err := s.GetTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.Intent, got.Intent)
	assert.Equal(t, in.Topic, got.Topic)
	assert.Equal(t, in.AgentConfig, got.AgentConfig)
	assert.Equal(t, in.ToolEndpoints, got.ToolEndpoints)
	assert.Equal(t, models.TaskStatusPending, got.Status)
	assert.Nil(t, got.Result)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", in.CreatedAt, got.CreatedAt)

	// Returned values are copies.
	got.ToolEndpoints["search"] = "mutated"
	again, err := s.GetTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "http://tools/search", again.ToolEndpoints["search"])
}

func testDuplicate(t *testing.T, s Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateTask(ctx, newTask("dup")))
	assert.ErrorIs(t, s.CreateTask(ctx, newTask("dup")), ErrDuplicate)

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func testNotFound(t *testing.T, s Store) {
	defer s.Close()
	ctx := context.Background()

	_, err := s.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateTask(ctx, newTask("missing")), ErrNotFound)
}

func testUpdateResult(t *testing.T, s Store) {
	defer s.Close()
	ctx := context.Background()

	task := newTask("t-2")
	require.NoError(t, s.CreateTask(ctx, task))

	task.Status = models.TaskStatusCompleted
	task.Source = models.SourceFallback
	task.Attempts = 3
	task.Result = &models.Result{
		AgentReply: "# Caching",
		NextStep:   map[string]any{"action": "review"},
		Logs:       "attempt 1: down\n",
		Error:      "remote unavailable (status 503)",
	}
	task.UpdatedAt = task.UpdatedAt.Add(time.Second)
	require.NoError(t, s.UpdateTask(ctx, task))

	got, err := s.GetTask(ctx, "t-2")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	assert.Equal(t, models.SourceFallback, got.Source)
	assert.Equal(t, 3, got.Attempts)
	require.NotNil(t, got.Result)
	assert.Equal(t, "# Caching", got.Result.AgentReply)
	assert.Equal(t, "review", got.Result.NextStep["action"])
	assert.Equal(t, "attempt 1: down\n", got.Result.Logs)
	assert.Equal(t, "remote unavailable (status 503)", got.Result.Error)
}

func testListOrder(t *testing.T, s Store) {
	defer s.Close()
	ctx := context.Background()

	ids := []string{"c", "a", "b", "e", "d"}
	for _, id := range ids {
		require.NoError(t, s.CreateTask(ctx, newTask(id)))
	}

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	got := make([]string, len(tasks))
	for i, task := range tasks {
		got[i] = task.ID
	}
	assert.Equal(t, ids, got)
}

func testAudit(t *testing.T, s Store) {
	defer s.Close()
	ctx := context.Background()

	for i, taskID := range []string{"x", "y", "x"} {
		require.NoError(t, s.WriteAudit(ctx, &models.AuditEntry{
			ID:         fmt.Sprintf("a-%d", i),
			Action:     "task.submit",
			InputsHash: "abc",
			Outcome:    "pending",
			TaskID:     taskID,
			Timestamp:  time.Now().UTC(),
		}))
	}

	all, err := s.ListAudit(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	forX, err := s.ListAudit(ctx, "x")
	require.NoError(t, err)
	require.Len(t, forX, 2)
	assert.Equal(t, "a-0", forX[0].ID)
	assert.Equal(t, "a-2", forX[1].ID)
}

func testConcurrentUpdates(t *testing.T, s Store) {
	defer s.Close()
	ctx := context.Background()

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, s.CreateTask(ctx, newTask(fmt.Sprintf("c-%d", i))))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task := newTask(fmt.Sprintf("c-%d", i))
			task.Status = models.TaskStatusRunning
			assert.NoError(t, s.UpdateTask(ctx, task))
		}(i)
	}
	wg.Wait()

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, n)
	for _, task := range tasks {
		assert.Equal(t, models.TaskStatusRunning, task.Status)
	}
}

func TestNewSQLite_CreatesFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestSQLite_MigrationIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.CreateTask(context.Background(), newTask("keep")))
	require.NoError(t, s.Close())

	s, err = NewSQLite(dbPath)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetTask(context.Background(), "keep")
	require.NoError(t, err)
	assert.Equal(t, "keep", got.ID)
}

func TestRedis_TTLExpiresRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), WithTTL(time.Minute))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateTask(ctx, newTask("old")))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, s.CreateTask(ctx, newTask("new")))

	_, err := s.GetTask(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "new", tasks[0].ID)
}

func TestRedis_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), WithRedisPrefix("nb"))
	defer s.Close()

	require.NoError(t, s.CreateTask(context.Background(), newTask("k")))
	assert.True(t, mr.Exists("nb:task:k"))
	ids, err := mr.List("nb:tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, ids)
}

func auditFor(id string, at time.Time) *models.AuditEntry {
	return &models.AuditEntry{ID: "a-" + id, Action: "submit", Outcome: "ok", TaskID: id, Timestamp: at}
}

func TestRedis_ExpiredRecordsLeaveNoKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), WithTTL(time.Minute))
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("t%d", i)
		require.NoError(t, s.CreateTask(ctx, newTask(id)))
		require.NoError(t, s.WriteAudit(ctx, auditFor(id, time.Now())))
	}
	mr.FastForward(2 * time.Minute)

	assert.Empty(t, mr.Keys(), "task, audit and index keys all expire")

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	entries, err := s.ListAudit(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRedis_ListingsPruneExpiredIDs(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), WithTTL(time.Minute))
	defer s.Close()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateTask(ctx, newTask("old")))
	require.NoError(t, s.WriteAudit(ctx, auditFor("old", now)))
	mr.FastForward(45 * time.Second)
	require.NoError(t, s.CreateTask(ctx, newTask("new")))
	require.NoError(t, s.WriteAudit(ctx, auditFor("new", now.Add(time.Second))))
	mr.FastForward(30 * time.Second)

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "new", tasks[0].ID)
	ids, err := mr.List("ntbk:tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)

	entries, err := s.ListAudit(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].TaskID)
	members, err := mr.Members("ntbk:audits")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, members)
	assert.False(t, mr.Exists("ntbk:audit:old"))
}

func TestRedis_DuplicateCreateLeavesOneIndexEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateTask(ctx, newTask("k")))
	assert.ErrorIs(t, s.CreateTask(ctx, newTask("k")), ErrDuplicate)

	ids, err := mr.List("ntbk:tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, ids)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory default", func(t *testing.T) {
		s, err := Open(ctx, Config{}, nil)
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "x.db")}, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLiteStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s, err := Open(ctx, Config{Driver: DriverRedis, RedisURL: "redis://" + mr.Addr()}, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &RedisStore{}, s)
	})

	t.Run("unreachable redis degrades to memory", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		s, err := Open(ctx, Config{Driver: DriverRedis, RedisURL: "redis://" + addr}, nil)
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, s)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: "etcd"}, nil)
		assert.Error(t, err)
	})
}
