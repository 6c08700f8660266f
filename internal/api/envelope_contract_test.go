package api

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readFixture loads an envelope fixture shared with API clients.
func readFixture(t *testing.T, name string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", "envelope", name))
	require.NoError(t, err, "contract tests require the shared fixtures")

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// transformed runs EnvelopeTransformer and returns the generic JSON form.
func transformed(t *testing.T, status string, v any) map[string]any {
	t.Helper()
	result, err := EnvelopeTransformer(nil, status, v)
	require.NoError(t, err)

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// assertSameKeys checks both objects carry exactly the same top-level fields.
func assertSameKeys(t *testing.T, expected, actual map[string]any) {
	t.Helper()
	for key := range actual {
		assert.Contains(t, expected, key, "server output contains unexpected field %q", key)
	}
	for key := range expected {
		assert.Contains(t, actual, key, "server output is missing field %q", key)
	}
}

func TestEnvelopeContract_Success(t *testing.T) {
	expected := readFixture(t, "success.json")

	actual := transformed(t, "200", map[string]string{
		"id":   "alt-V1StGXR8_Z5jdHi6B-myT",
		"name": "Português",
	})

	assertSameKeys(t, expected, actual)
	assert.Equal(t, expected, actual)
}

func TestEnvelopeContract_SuccessNullData(t *testing.T) {
	expected := readFixture(t, "success_null_data.json")

	actual := transformed(t, "204", nil)

	assertSameKeys(t, expected, actual)
	assert.Equal(t, expected, actual)
}

func TestEnvelopeContract_SimpleError(t *testing.T) {
	expected := readFixture(t, "error_simple.json")

	actual := transformed(t, "500", errors.New("unexpected error occurred"))

	assertSameKeys(t, expected, actual)
	assert.Equal(t, expected, actual)
}

func TestEnvelopeContract_DetailedError(t *testing.T) {
	expected := readFixture(t, "error_detailed.json")

	actual := transformed(t, "400", &APIError{
		status:  400,
		Code:    "VALIDATION",
		Message: "validation failed: destination_base_path",
		Details: map[string]string{
			"destination_base_path": "must be an absolute path without '..' segments",
		},
	})

	assertSameKeys(t, expected, actual)
	assert.Equal(t, expected, actual)
}

func TestEnvelopeContract_UncodedAPIErrorIsSimple(t *testing.T) {
	actual := transformed(t, "502", &APIError{status: 502, Message: "bad gateway"})

	assert.Equal(t, false, actual["success"])
	assert.Equal(t, "bad gateway", actual["error"])
	assert.NotContains(t, actual, "code")
}

func TestEnvelopeContract_VersionFieldName(t *testing.T) {
	actual := transformed(t, "201", struct{}{})

	assert.InDelta(t, float64(EnvelopeVersion), actual["v"], 0)
	assert.NotContains(t, actual, "version")
}
