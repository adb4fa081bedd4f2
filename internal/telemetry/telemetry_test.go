package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestNewResource(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment=ci")

	res, err := newResource(context.Background(), Config{
		ServiceName: "assetpipe",
		Version:     "1.2.3",
		ConfigPath:  "/src/assetpipe.yaml",
	})
	require.NoError(t, err)

	set := res.Set()

	v, ok := set.Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "assetpipe", v.AsString())

	v, ok = set.Value(semconv.ServiceVersionKey)
	require.True(t, ok)
	assert.Equal(t, "1.2.3", v.AsString())

	v, ok = set.Value(ConfigPathKey)
	require.True(t, ok)
	assert.Equal(t, "/src/assetpipe.yaml", v.AsString())

	v, ok = set.Value(attribute.Key("deployment.environment"))
	require.True(t, ok)
	assert.Equal(t, "ci", v.AsString())
}

func TestNewResource_NoConfigPath(t *testing.T) {
	res, err := newResource(context.Background(), Config{ServiceName: "assetpipe"})
	require.NoError(t, err)

	_, ok := res.Set().Value(ConfigPathKey)
	assert.False(t, ok)
}
