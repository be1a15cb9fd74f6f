package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cv-ingest-go/internal/config"
	"cv-ingest-go/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveObjectName(t *testing.T) {
	assert.Equal(t, "Engineer/LinkedIn/cv.txt", storage.ArchiveObjectName("Engineer", "LinkedIn", "cv.pdf"))
	assert.Equal(t, "a_b/_/x.txt", storage.ArchiveObjectName("a/b", " ", "x.PDF"))
}

func TestFileMD5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	sum, err := storage.FileMD5(path)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", sum)

	_, err = storage.FileMD5(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

// TestRedisLedger 需要本地 Redis，连接不上时跳过
func TestRedisLedger(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	r, err := storage.NewRedisAdapter(&config.RedisConfig{Address: addr, MD5RecordExpireDays: 1})
	if err != nil {
		t.Skipf("Redis 不可用，跳过测试: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sum := "test-" + uuid.NewString()
	seen, err := r.Seen(ctx, sum)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, r.Record(ctx, sum))
	seen, err = r.Seen(ctx, sum)
	require.NoError(t, err)
	assert.True(t, seen)

	r.Client.SRem(ctx, "cvingest:file:dedup_set", sum)
}

func TestNewRedisAdapter_Unreachable(t *testing.T) {
	_, err := storage.NewRedisAdapter(&config.RedisConfig{Address: "127.0.0.1:1", DialTimeoutSeconds: 1})
	assert.Error(t, err)

	_, err = storage.NewRedisAdapter(&config.RedisConfig{})
	assert.Error(t, err)
}
