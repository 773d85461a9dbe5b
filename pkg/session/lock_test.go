package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/keystone/internal/runtime"
	"github.com/aretw0/keystone/pkg/survey"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(func(id string) *runtime.Machine {
		return runtime.NewMachine(survey.Default(), nil, runtime.WithID(id))
	})
	ctx := context.Background()
	count := 1000

	// 1. Lock many sessions, including ones that do not exist
	for i := 0; i < count; i++ {
		m, _ := mgr.Start(ctx)
		_ = mgr.WithLock(ctx, m.ID(), func(context.Context, *runtime.Machine) error { return nil })
		_ = mgr.WithLock(ctx, fmt.Sprintf("missing-%d", i), func(context.Context, *runtime.Machine) error { return nil })
		_ = mgr.Delete(m.ID())
	}

	// 2. Count locks remaining in map
	lockCount := len(mgr.locks)

	// 3. Assert Leak
	t.Logf("Sessions Created: %d, Locks Leaked: %d", count, lockCount)

	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}
