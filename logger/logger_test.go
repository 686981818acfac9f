package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFromWithoutLogger(t *testing.T) {
	l := From(context.Background())
	require.NotNil(t, l)
	l.Info("dropped")
}

func TestNewJSONCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithJSON(true), WithWriter(&buf), WithServerName("backfill"), WithLevel("debug"))
	ctx := With(context.Background(), l)

	From(ctx).Debug("resolved", zap.String("dag_id", "orders_backfilling_dag"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "resolved", line["msg"])
	assert.Equal(t, "DEBUG", line["level"])
	assert.Equal(t, "backfill", line["service_name"])
	assert.Equal(t, "orders_backfilling_dag", line["dag_id"])
}

func TestNewLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithLevel("warn"))
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
