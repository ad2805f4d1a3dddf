package redisqueue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue"
)

// TestListKeyNamespacesByQueueName covers the Redis list-key derivation used
// for every LPUSH/BRPOP pair, distinct per §4.5 named queue.
func TestListKeyNamespacesByQueueName(t *testing.T) {
	require.Equal(t, "digitaltwin:queue:collectors", listKey(queue.Collectors))
	require.Equal(t, "digitaltwin:queue:harvesters", listKey(queue.Harvesters))
	require.NotEqual(t, listKey(queue.Collectors), listKey(queue.Priority))
}

// TestNewBuildsQueueWithoutConnecting confirms construction never dials
// Redis eagerly (go-redis connects lazily on first command), so New is safe
// to call in tests and at startup before a broker is reachable.
func TestNewBuildsQueueWithoutConnecting(t *testing.T) {
	q := New("127.0.0.1:1", nil)
	require.NotNil(t, q)
	require.NotNil(t, q.client)
	require.NotNil(t, q.cron)
}
