package visionrouter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	vr "github.com/ineyio/visionrouter"
)

const (
	defaultModel = "free/default"
	limitedModel = "limited/model"
	paidModel    = "paid/model"
	testImage    = "data:image/png;base64,iVBORw0KGgo="
)

// testConfig has a capped provider, a paid-only provider and an unlimited
// provider serving the default model.
func testConfig(t *testing.T) vr.Config {
	t.Helper()
	cfg, err := vr.ParseConfig([]byte(`
default_model: "free/default"
providers:
  - key: limited
    name: Limited
    limits:
      free: { daily: 3, monthly: 10 }
      pro:  { daily: 5, monthly: 20 }
    models:
      - { id: "limited/model", name: "Limited", tier: free }
  - key: paid
    name: Paid
    limits:
      free: { daily: 0, monthly: 0 }
      pro:  { daily: 2, monthly: 4 }
    models:
      - { id: "paid/model", name: "Paid", tier: paid }
  - key: unlimited
    name: Unlimited
    limits:
      free: { daily: unlimited, monthly: unlimited }
    models:
      - { id: "free/default", name: "Default", tier: free }
      - { id: "free/other",   name: "Other",   tier: free }
`))
	require.NoError(t, err)
	return cfg
}
