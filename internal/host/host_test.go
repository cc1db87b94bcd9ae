// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package host_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stockclerk/stockclerk/internal/host"
	"github.com/stockclerk/stockclerk/pkg/errutil"
	"github.com/stockclerk/stockclerk/pkg/plugin"
)

type msg = plugin.ProductMessage[string]

// hooked is a plugin described entirely by its hooks.
type hooked struct{ hooks plugin.Hooks[string] }

func (p hooked) Hooks() plugin.Hooks[string] { return p.hooks }

func handler(fn func(msg) (msg, error)) hooked {
	return hooked{hooks: plugin.Hooks[string]{
		HandleMessage: func(_ context.Context, m msg) (msg, error) { return fn(m) },
	}}
}

func errorHandler(fn func(error) error) hooked {
	return hooked{hooks: plugin.Hooks[string]{
		HandleError: func(_ context.Context, err error) error { return fn(err) },
	}}
}

func newHost(t *testing.T, plugins ...plugin.Plugin) *host.Host[string] {
	t.Helper()
	h := host.New[string](nil)
	for i, p := range plugins {
		require.NoError(t, h.LoadPlugin(context.Background(), string(rune('a'+i)), p))
	}
	return h
}

func collectMessages(h *host.Host[string]) *[]msg {
	var got []msg
	h.OnMessage(func(m msg) { got = append(got, m) })
	return &got
}

func collectErrors(h *host.Host[string]) *[]error {
	var got []error
	h.OnError(func(err error) { got = append(got, err) })
	return &got
}

func TestPublish_PassThroughWithoutHandlers(t *testing.T) {
	h := newHost(t, struct{}{}, struct{}{})
	got := collectMessages(h)

	in := msg{{ID: "sku-1"}}
	assert.True(t, h.Publish(context.Background(), in))
	require.Len(t, *got, 1)
	assert.Equal(t, in, (*got)[0])
}

func TestPublish_EmptyMessageIsPresent(t *testing.T) {
	h := newHost(t)
	got := collectMessages(h)

	assert.True(t, h.Publish(context.Background(), msg{}))
	require.Len(t, *got, 1)
	assert.NotNil(t, (*got)[0])
	assert.Empty(t, (*got)[0])
}

func TestPublish_NilMessageIsAbsent(t *testing.T) {
	h := newHost(t)
	got := collectMessages(h)

	assert.False(t, h.Publish(context.Background(), nil))
	assert.Empty(t, *got)
}

func TestPublish_NoSubscribersStillReturnsTrue(t *testing.T) {
	h := newHost(t, handler(func(m msg) (msg, error) { return m, nil }))
	before := testutil.ToFloat64(host.Publications.WithLabelValues(host.OutcomeUnobserved))

	assert.True(t, h.Publish(context.Background(), msg{{ID: "x"}}))
	assert.InDelta(t, before+1, testutil.ToFloat64(host.Publications.WithLabelValues(host.OutcomeUnobserved)), 0)
}

func TestReportError_NoSubscribersStillReturnsTrue(t *testing.T) {
	h := newHost(t, errorHandler(func(err error) error { return err }))
	before := testutil.ToFloat64(host.ErrorReports.WithLabelValues(host.OutcomeUnobserved))

	assert.True(t, h.ReportError(context.Background(), errors.New("e")))
	assert.InDelta(t, before+1, testutil.ToFloat64(host.ErrorReports.WithLabelValues(host.OutcomeUnobserved)), 0)
}

func TestPublish_TransformsInLoadOrder(t *testing.T) {
	appendID := func(suffix string) hooked {
		return handler(func(m msg) (msg, error) {
			out := m.Clone()
			out[0].ID += suffix
			return out, nil
		})
	}
	h := newHost(t, appendID("-a"), appendID("-b"), appendID("-c"))
	got := collectMessages(h)

	assert.True(t, h.Publish(context.Background(), msg{{ID: "sku"}}))
	require.Len(t, *got, 1)
	assert.Equal(t, "sku-a-b-c", (*got)[0][0].ID)
}

func TestPublish_NilFromHandlerShortCircuits(t *testing.T) {
	laterCalled := false
	h := newHost(t,
		handler(func(msg) (msg, error) { return nil, nil }),
		handler(func(m msg) (msg, error) {
			laterCalled = true
			return m, nil
		}),
	)
	got := collectMessages(h)

	assert.False(t, h.Publish(context.Background(), msg{{ID: "x"}}))
	assert.False(t, laterCalled)
	assert.Empty(t, *got)
}

func TestPublish_HandlerErrorRunsErrorPipelineFromStart(t *testing.T) {
	boom := errors.New("b")
	var seenByFirst error
	h := newHost(t,
		errorHandler(func(err error) error {
			seenByFirst = err
			return err
		}),
		handler(func(msg) (msg, error) { return nil, boom }),
	)
	messages := collectMessages(h)
	errs := collectErrors(h)

	assert.True(t, h.Publish(context.Background(), msg{{ID: "x"}}))
	assert.Same(t, boom, seenByFirst)
	assert.Empty(t, *messages)
	require.Len(t, *errs, 1)
	assert.Same(t, boom, (*errs)[0])
}

func TestPublish_HandlerErrorSuppressedReturnsFalse(t *testing.T) {
	h := newHost(t,
		handler(func(msg) (msg, error) { return nil, errors.New("fail") }),
		errorHandler(func(error) error { return nil }),
	)
	errs := collectErrors(h)

	assert.False(t, h.Publish(context.Background(), msg{{ID: "x"}}))
	assert.Empty(t, *errs)
}

func TestPublish_HandlerPanicRoutesToErrorPipeline(t *testing.T) {
	cause := errors.New("kaput")
	h := newHost(t, handler(func(msg) (msg, error) { panic(cause) }))
	errs := collectErrors(h)

	assert.True(t, h.Publish(context.Background(), msg{{ID: "x"}}))
	require.Len(t, *errs, 1)
	assert.ErrorIs(t, (*errs)[0], cause)
	errutil.AssertErrorCode(t, (*errs)[0], host.CodePluginPanic)
}

func TestReportError_PassThroughWithoutHandlers(t *testing.T) {
	h := newHost(t, struct{}{})
	errs := collectErrors(h)

	err := errors.New("plain")
	assert.True(t, h.ReportError(context.Background(), err))
	require.Len(t, *errs, 1)
	assert.Same(t, err, (*errs)[0])
}

func TestReportError_NilErrorIsAbsent(t *testing.T) {
	called := false
	h := newHost(t, errorHandler(func(err error) error {
		called = true
		return err
	}))
	errs := collectErrors(h)

	assert.False(t, h.ReportError(context.Background(), nil))
	assert.False(t, called)
	assert.Empty(t, *errs)
}

func TestReportError_NilSuppressesLaterHandlers(t *testing.T) {
	laterCalled := false
	h := newHost(t,
		errorHandler(func(error) error { return nil }),
		errorHandler(func(err error) error {
			laterCalled = true
			return err
		}),
	)
	errs := collectErrors(h)

	assert.False(t, h.ReportError(context.Background(), errors.New("x")))
	assert.False(t, laterCalled)
	assert.Empty(t, *errs)
}

func TestReportError_TransformedErrorSeenByLaterHandlers(t *testing.T) {
	replacement := errors.New("replacement")
	var seen error
	h := newHost(t,
		errorHandler(func(error) error { return replacement }),
		errorHandler(func(err error) error {
			seen = err
			return err
		}),
	)
	errs := collectErrors(h)

	assert.True(t, h.ReportError(context.Background(), errors.New("original")))
	assert.Same(t, replacement, seen)
	require.Len(t, *errs, 1)
	assert.Same(t, replacement, (*errs)[0])
}

func TestReportError_PanicReplacesCurrentError(t *testing.T) {
	var seen error
	h := newHost(t,
		errorHandler(func(error) error { panic("handler exploded") }),
		errorHandler(func(err error) error {
			seen = err
			return err
		}),
	)
	errs := collectErrors(h)

	assert.True(t, h.ReportError(context.Background(), errors.New("original")))
	require.Error(t, seen)
	assert.Contains(t, seen.Error(), "handler exploded")
	require.Len(t, *errs, 1)
	errutil.AssertErrorCode(t, (*errs)[0], host.CodePluginPanic)
}

func TestLoadPlugin_CallsLoadOnceWithHost(t *testing.T) {
	var calls int
	var received plugin.Host[string]
	h := host.New[string](map[string]any{"k": "v"})

	err := h.LoadPlugin(context.Background(), "loader", hooked{hooks: plugin.Hooks[string]{
		Load: func(_ context.Context, hst plugin.Host[string]) error {
			calls++
			received = hst
			return nil
		},
	}})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.NotNil(t, received)
	assert.Equal(t, map[string]any{"k": "v"}, received.Options())
}

func TestLoadPlugin_FailureKeepsPluginRegistered(t *testing.T) {
	loadErr := errors.New("cannot load")
	h := host.New[string](nil)

	err := h.LoadPlugin(context.Background(), "broken", hooked{hooks: plugin.Hooks[string]{
		Load: func(context.Context, plugin.Host[string]) error { return loadErr },
		HandleMessage: func(_ context.Context, m msg) (msg, error) {
			return append(m.Clone(), plugin.ProductStatus[string]{ID: "added"}), nil
		},
	}})

	require.Error(t, err)
	assert.ErrorIs(t, err, loadErr)
	errutil.AssertErrorCode(t, err, host.CodeLifecycleFailed)
	errutil.AssertErrorContext(t, err, "plugin", "broken")
	assert.Equal(t, []string{"broken"}, h.Plugins())

	got := collectMessages(h)
	assert.True(t, h.Publish(context.Background(), msg{}))
	require.Len(t, *got, 1)
	assert.Len(t, (*got)[0], 1)
}

func TestLoadPlugin_LoadMayPublish(t *testing.T) {
	h := host.New[string](nil)
	got := collectMessages(h)

	err := h.LoadPlugin(context.Background(), "eager", hooked{hooks: plugin.Hooks[string]{
		Load: func(ctx context.Context, hst plugin.Host[string]) error {
			hst.Publish(ctx, msg{{ID: "from-load"}})
			return nil
		},
	}})

	require.NoError(t, err)
	require.Len(t, *got, 1)
	assert.Equal(t, "from-load", (*got)[0][0].ID)
}

func TestStartStop_LoadOrderAndRepeatable(t *testing.T) {
	var calls []string
	lifecycle := func(name string) hooked {
		return hooked{hooks: plugin.Hooks[string]{
			Start: func(context.Context) error {
				calls = append(calls, "start:"+name)
				return nil
			},
			Stop: func(context.Context) error {
				calls = append(calls, "stop:"+name)
				return nil
			},
		}}
	}
	h := newHost(t, lifecycle("a"), struct{}{}, lifecycle("c"))
	ctx := context.Background()

	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.Stop(ctx))

	assert.Equal(t, []string{
		"start:a", "start:c",
		"start:a", "start:c",
		"stop:a", "stop:c",
	}, calls)
}

func TestStart_FirstFailureStopsAndWraps(t *testing.T) {
	startErr := errors.New("port in use")
	laterStarted := false
	h := newHost(t,
		hooked{hooks: plugin.Hooks[string]{Start: func(context.Context) error { return startErr }}},
		hooked{hooks: plugin.Hooks[string]{Start: func(context.Context) error {
			laterStarted = true
			return nil
		}}},
	)
	errs := collectErrors(h)

	err := h.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, startErr)
	errutil.AssertErrorCode(t, err, host.CodeLifecycleFailed)
	errutil.AssertErrorContext(t, err, "hook", "start")
	assert.False(t, laterStarted)
	assert.Empty(t, *errs, "lifecycle errors never enter the pipeline")
}

func TestStop_PanicBecomesError(t *testing.T) {
	h := newHost(t, hooked{hooks: plugin.Hooks[string]{Stop: func(context.Context) error { panic("no") }}})

	err := h.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestOptions_ReturnsCopy(t *testing.T) {
	source := map[string]any{"nested": map[string]any{"a": 1}, "list": []any{"x"}}
	h := host.New[string](source)

	source["added"] = true
	first := h.Options()
	first["nested"].(map[string]any)["a"] = 2
	first["list"].([]any)[0] = "y"
	delete(first, "list")

	second := h.Options()
	assert.NotContains(t, second, "added")
	assert.Equal(t, 1, second["nested"].(map[string]any)["a"])
	assert.Equal(t, []any{"x"}, second["list"])
}

func TestSubscriptions_OrderAndCancel(t *testing.T) {
	h := newHost(t)
	var order []string
	cancelFirst := h.OnMessage(func(msg) { order = append(order, "first") })
	h.OnMessage(func(msg) { order = append(order, "second") })

	assert.True(t, h.EmitMessage(msg{}))
	cancelFirst()
	cancelFirst()
	assert.True(t, h.EmitMessage(msg{}))

	assert.Equal(t, []string{"first", "second", "second"}, order)
	messages, errs := h.Subscribers()
	assert.Equal(t, 1, messages)
	assert.Equal(t, 0, errs)
	assert.False(t, h.EmitError(errors.New("nobody listening")))
}

func TestSubscriptions_PanickingListenerDoesNotStopOthers(t *testing.T) {
	h := newHost(t)
	reached := false
	h.OnError(func(error) { panic("listener") })
	h.OnError(func(error) { reached = true })

	assert.True(t, h.ReportError(context.Background(), errors.New("x")))
	assert.True(t, reached)
}

func TestPublish_ConcurrentPublicationsAndSubscriptions(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHost(t, handler(func(m msg) (msg, error) { return m, nil }))
	var mu sync.Mutex
	count := 0
	h.OnMessage(func(msg) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Publish(context.Background(), msg{{ID: "x"}})
		}()
		go func() {
			defer wg.Done()
			cancel := h.OnMessage(func(msg) {})
			cancel()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, count)
}

func TestMetrics_PublicationOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	host.RegisterMetrics(reg)

	h := newHost(t, handler(func(m msg) (msg, error) {
		if len(m) == 0 {
			return nil, nil
		}
		return m, nil
	}))
	collectMessages(h)

	delivered := testutil.ToFloat64(host.Publications.WithLabelValues(host.OutcomeDelivered))
	dropped := testutil.ToFloat64(host.Publications.WithLabelValues(host.OutcomeDropped))

	h.Publish(context.Background(), msg{{ID: "x"}})
	h.Publish(context.Background(), msg{})

	assert.InDelta(t, delivered+1, testutil.ToFloat64(host.Publications.WithLabelValues(host.OutcomeDelivered)), 0)
	assert.InDelta(t, dropped+1, testutil.ToFloat64(host.Publications.WithLabelValues(host.OutcomeDropped)), 0)
}
