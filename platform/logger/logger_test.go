package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterUsesJSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf).WithMerchant("m-1").WithRun("r-1")

	log.Debug("hidden")
	log.Info("migration run started", "total", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "migration run started", line["msg"])
	assert.Equal(t, "m-1", line["merchant_id"])
	assert.Equal(t, "r-1", line["run_id"])
	assert.EqualValues(t, 3, line["total"])
}

func TestNewWithWriterLogsDebugInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("Development", &buf).Debug("batch done")

	assert.True(t, strings.Contains(buf.String(), "msg=\"batch done\""))
}
