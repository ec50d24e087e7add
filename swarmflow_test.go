package swarmflow

import (
	"context"
	"testing"

	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/supervision"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewEngine(t *testing.T) {
	t.Parallel()
	engine, err := New(
		WithConfig(config.DefaultConfig()),
		WithLogger(zap.NewNop()),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	defer func() { _ = engine.Close(context.Background()) }()

	require.NotNil(t, engine.Orchestrator)
	require.NotNil(t, engine.Supervisor)

	_, err = engine.Supervisor.Register("root", supervision.RegisterOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, engine.Supervisor.Stats().Nodes)
}

func TestNewEngine_DefaultConfigLoads(t *testing.T) {
	engine, err := New(
		WithLogger(zap.NewNop()),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	defer func() { _ = engine.Close(context.Background()) }()

	assert.Equal(t, config.DefaultSupervisionConfig().MaxDepth, engine.Config.Supervision.MaxDepth)
}
