package repository

import (
	"testing"

	"liftwise-config/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestScopeLockKey_StableAndDistinct(t *testing.T) {
	a := ScopeLockKey(domain.ScopeTypeMovement, "bench_press")
	require.Equal(t, a, ScopeLockKey(domain.ScopeTypeMovement, "bench_press"))

	// 不同作用域拿不同的锁
	require.NotEqual(t, a, ScopeLockKey(domain.ScopeTypeMovementGroup, "bench_press"))
	require.NotEqual(t, a, ScopeLockKey(domain.ScopeTypeMovement, "incline_bench_press"))

	// 分隔符防止字段拼接歧义
	require.NotEqual(t, ScopeLockKey("ab", "c"), ScopeLockKey("a", "bc"))
}
