package meter_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vr "github.com/ineyio/visionrouter"
	"github.com/ineyio/visionrouter/meter"
)

func TestLogMeter_Events(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	m := meter.NewLogMeter(logger)

	m.OnAdmission(vr.AdmissionEvent{UserID: "u1", Model: "gpt-5-nano", Provider: "openai", Tier: vr.TierFree, Reason: "Daily limit reached (0/day) for OpenAI"})
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "admission denied", hook.LastEntry().Message)
	assert.Equal(t, "openai", hook.LastEntry().Data["provider"])

	m.OnResult(vr.ResultEvent{Provider: "gemini", Model: "gemini-2.5-flash", Error: errors.New("boom"), Duration: time.Second})
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "result_error", hook.LastEntry().Message)
	assert.Equal(t, int64(1000), hook.LastEntry().Data["duration_ms"])

	m.OnFallback(vr.FallbackEvent{OriginalModel: "gpt-5-nano", DefaultModel: "google/gemma-3-27b-it:free", Reason: errors.New("down"), Success: true})
	assert.Equal(t, "fallback", hook.LastEntry().Message)
	assert.Equal(t, true, hook.LastEntry().Data["success"])

	m.OnRoute(vr.RouteEvent{Provider: "openrouter", Model: "nope", LastResort: true})
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestPrometheusMeter_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := meter.NewPrometheusMeter(reg)
	require.NoError(t, err)

	m.OnAdmission(vr.AdmissionEvent{Provider: "gemini", Tier: vr.TierBasic, Allowed: true})
	m.OnAdmission(vr.AdmissionEvent{Provider: "gemini", Tier: vr.TierBasic, Allowed: false})
	m.OnRoute(vr.RouteEvent{Provider: "gemini"})
	m.OnResult(vr.ResultEvent{Provider: "gemini", Success: false, Duration: 2 * time.Second})
	m.OnFallback(vr.FallbackEvent{Success: true})

	count, err := testutil.GatherAndCount(reg, "visionrouter_admissions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "visionrouter_dispatch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "visionrouter_fallbacks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusMeter_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := meter.NewPrometheusMeter(reg)
	require.NoError(t, err)

	_, err = meter.NewPrometheusMeter(reg)
	assert.Error(t, err)
}

type countingMeter struct {
	meter.NoopMeter
	n int
}

func (c *countingMeter) OnFallback(vr.FallbackEvent) { c.n++ }

func TestMulti_FansOut(t *testing.T) {
	a, b := &countingMeter{}, &countingMeter{}
	m := meter.Multi{a, b, &meter.NoopMeter{}}

	m.OnFallback(vr.FallbackEvent{})
	m.OnRoute(vr.RouteEvent{})

	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}
