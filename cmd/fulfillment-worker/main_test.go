package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_UnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"serve"}, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), `unknown command "serve"`)
	assert.Contains(t, stderr.String(), "Usage: fulfillment-worker")
}

func TestRun_BadFlag(t *testing.T) {
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"run", "-nope"}, &stderr)
	assert.Equal(t, 2, code)
}

func TestRun_InvalidConfiguration(t *testing.T) {
	t.Setenv("FULFILLMENT_CONFIG", "")
	t.Setenv("MARKET_API_TOKEN", "")
	t.Setenv("MARKET_BUSINESS_ID", "")
	t.Setenv("MARKET_CAMPAIGN_ID", "")

	var stderr bytes.Buffer
	code := run(context.Background(), nil, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "MARKET_API_TOKEN")
}
