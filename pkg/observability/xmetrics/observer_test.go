package xmetrics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartNilTolerance(t *testing.T) {
	t.Run("nil observer", func(t *testing.T) {
		ctx, span := Start(context.Background(), nil, SpanOptions{})
		require.NotNil(t, ctx)
		require.NotNil(t, span)
		span.End(Result{})
	})

	t.Run("nil context", func(t *testing.T) {
		ctx, span := Start(nil, NoopObserver{}, SpanOptions{}) //nolint:staticcheck
		require.NotNil(t, ctx)
		span.End(Result{Err: errors.New("boom")})
	})

	t.Run("observer returning nils", func(t *testing.T) {
		ctx, span := Start(context.Background(), nilObserver{}, SpanOptions{})
		require.NotNil(t, ctx)
		require.NotNil(t, span)
	})
}

type nilObserver struct{}

func (nilObserver) Start(context.Context, SpanOptions) (context.Context, Span) {
	return nil, nil
}

func TestOTelObserver(t *testing.T) {
	obs, err := NewOTelObserver()
	require.NoError(t, err)

	ctx, span := obs.Start(context.Background(), SpanOptions{
		Component: "xgateway",
		Operation: "run_completion",
		Attrs:     []Attr{String("dependency", "completion")},
	})
	require.NotNil(t, ctx)

	// Records against the global (noop by default) provider without error.
	span.End(Result{Err: errors.New("downstream unavailable"), Attrs: []Attr{Int("attempts", 3)}})
	_, span = obs.Start(ctx, SpanOptions{})
	span.End(Result{Status: StatusOK})
}

func TestAppendAttrsTypes(t *testing.T) {
	kvs := appendAttrs(nil, []Attr{
		{Key: "s", Value: "v"},
		{Key: "i", Value: 1},
		{Key: "i64", Value: int64(2)},
		{Key: "f", Value: 1.5},
		{Key: "b", Value: true},
		{Key: "other", Value: struct{ X int }{1}},
		{Key: "", Value: "dropped"},
	})
	assert.Len(t, kvs, 6)
}
