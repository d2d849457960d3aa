package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	require.NoError(t, reg.Validate())

	for _, taskType := range []string{"record-status-transition", "notify-status-change"} {
		a, ok := reg.Find(taskType)
		require.True(t, ok, taskType)
		assert.Equal(t, "lifecycle", a.Category)

		schema, err := a.InputSchemaJSON()
		require.NoError(t, err)
		assert.Contains(t, schema, `"applicationId"`)

		timeout, err := a.TimeoutDuration()
		require.NoError(t, err)
		assert.Greater(t, timeout, time.Duration(0))
	}

	_, ok := reg.Find("send-welcome-kit")
	assert.False(t, ok)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2","activities":[{"id":"a","taskType":"a","timeout":"5s"}]}`), 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2", reg.Version)
	assert.NoError(t, reg.Validate())

	schema, err := reg.Activities[0].InputSchemaJSON()
	require.NoError(t, err)
	assert.Empty(t, schema)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"activities":`))
	assert.Error(t, err)
}

func TestValidate_CollectsProblems(t *testing.T) {
	reg := &ActivityRegistry{Activities: []Activity{
		{ID: "a", TaskType: "dup", Timeout: "soon"},
		{ID: "b", TaskType: "dup", Retries: -1},
		{TaskType: ""},
		{ID: "c", TaskType: "c", InputSchema: map[string]interface{}{"type": 12}},
	}}

	err := reg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "a: bad timeout")
	assert.Contains(t, msg, "b: duplicate taskType dup")
	assert.Contains(t, msg, "b: retries must not be negative")
	assert.Contains(t, msg, "activities[2]: id is required")
	assert.Contains(t, msg, "activities[2]: taskType is required")
	assert.Contains(t, msg, "c: input schema")
}

func TestSchema_NotifyStatusChangeInput(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	a, ok := reg.Find("notify-status-change")
	require.True(t, ok)

	assert.Equal(t, []string{"applicationId", "newStatus"}, a.InputSchema.Required())
	assert.Equal(t, []string{"applicationId", "borrowerName", "newStatus", "recipientEmail", "recipientPhone"}, a.InputSchema.Properties())
	assert.Equal(t, "string", a.InputSchema.PropertyType("recipientPhone"))
	assert.Nil(t, a.InputSchema.PropertyType("ssn"))

	rst, ok := reg.Find("record-status-transition")
	require.True(t, ok)
	assert.Equal(t, []interface{}{"string", "null"}, rst.InputSchema.PropertyType("comments"))
}
