package testsupport

import (
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SQLiteDSN returns a DSN for a private in-memory sqlite database. The
// database lives as long as one connection to it stays open, so callers
// should cap the pool at a single connection.
func SQLiteDSN(t *testing.T) string {
	t.Helper()
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
}

// StartRedis runs an in-process Redis server for the duration of the test
// and returns it with its connection URL.
func StartRedis(t *testing.T) (*miniredis.Miniredis, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, "redis://" + mr.Addr() + "/0"
}

// NewRedisClient returns a client for mr that is closed when the test ends.
func NewRedisClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:     mr.Addr(),
		Protocol: 2,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}
