package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/cozy-creator/audio-adapters/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, out *bytes.Buffer) map[string]any {
	t.Helper()

	text := out.String()
	require.True(t, strings.HasSuffix(text, "\n"))
	require.Equal(t, 1, strings.Count(text, "\n"), "exactly one line")

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &doc))
	return doc
}

func TestWrite(t *testing.T) {
	var out bytes.Buffer
	result := types.Result{"status": "ok", "request_id": "spoofed"}

	require.NoError(t, Write(&out, "req-1", result))

	doc := decodeLine(t, &out)
	assert.Equal(t, "ok", doc["status"])
	assert.Equal(t, "req-1", doc["request_id"])
	assert.Equal(t, "spoofed", result["request_id"], "input result is not modified")
}

func TestWriteError(t *testing.T) {
	var out bytes.Buffer
	err := types.Errorf(types.ParameterError, "prompt is required")

	require.NoError(t, WriteError(&out, "req-2", err))

	doc := decodeLine(t, &out)
	assert.Equal(t, map[string]any{
		"error":      "prompt is required",
		"error_type": "ParameterError",
		"request_id": "req-2",
	}, doc)
}

func TestWriteErrorDefaults(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, WriteError(&out, "", errors.New("")))

	doc := decodeLine(t, &out)
	assert.Equal(t, "unknown error", doc["error"])
	assert.Equal(t, "ExecutionError", doc["error_type"])
	assert.Equal(t, "", doc["request_id"])
}

func TestWriteUnencodableResult(t *testing.T) {
	var out bytes.Buffer
	err := Write(&out, "req-3", types.Result{"duration": math.NaN()})
	require.Error(t, err)
	assert.Equal(t, types.ExecutionError, types.KindOf(err))

	doc := decodeLine(t, &out)
	assert.Equal(t, "req-3", doc["request_id"])
	assert.Contains(t, doc["error"], "failed to encode result")
	assert.NotContains(t, doc, "duration")
}
