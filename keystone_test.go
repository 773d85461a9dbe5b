package keystone_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/keystone"
	"github.com/aretw0/keystone/pkg/adapters/memory"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/observability"
	"github.com/aretw0/keystone/pkg/survey"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilStore(t *testing.T) {
	_, err := keystone.New(nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestNew_InvalidDefinition(t *testing.T) {
	_, err := keystone.New(memory.NewStore(), keystone.WithDefinition(&survey.Definition{ID: "broken"}))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestEngine_SessionLifecycle(t *testing.T) {
	store := memory.NewStore()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	engine, err := keystone.New(store, keystone.WithMetrics(metrics))
	require.NoError(t, err)
	defer engine.Close()
	ctx := context.Background()

	sess, err := engine.StartSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessions))

	got, err := engine.Session(sess.ID())
	require.NoError(t, err)
	assert.Same(t, sess, got)

	for sess.Advance() {
	}
	require.NoError(t, sess.SubmitEmail(ctx, "owner@firm.com"))
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Submissions.WithLabelValues("ok")))

	require.NoError(t, engine.EndSession(sess.ID()))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveSessions))
	_, err = engine.Session(sess.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEngine_Submit(t *testing.T) {
	store := memory.NewStore()
	engine, err := keystone.New(store)
	require.NoError(t, err)

	record, err := engine.Submit(context.Background(), "owner@firm.com", domain.Responses{domain.QuestionRevenue: "$1M-$5M"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(record.Key, "survey:owner@firm.com:"))
	assert.Equal(t, 1, store.Len())

	_, err = engine.Submit(context.Background(), "", nil)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}
