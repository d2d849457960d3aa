package main

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-origination/pkg/registry"
)

func TestGoName(t *testing.T) {
	assert.Equal(t, "ApplicationID", goName("applicationId"))
	assert.Equal(t, "PortalURL", goName("portal_url"))
	assert.Equal(t, "NewStatus", goName("newStatus"))
}

func TestGoType(t *testing.T) {
	assert.Equal(t, "string", goType("string"))
	assert.Equal(t, "int", goType("integer"))
	assert.Equal(t, "*string", goType([]interface{}{"string", "null"}))
	assert.Equal(t, "interface{}", goType(nil))
}

func TestWorkerData_FromRegistry(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)
	act, ok := reg.Find("record-status-transition")
	require.True(t, ok)

	data := workerData(act)
	assert.Equal(t, "recordstatustransition", data.PackageName)
	assert.Equal(t, "lifecycle", data.Category)
	assert.Equal(t, []string{"ApplicationID", "NewStatus"}, data.Required)

	require.NotEmpty(t, data.InputFields)
	assert.Equal(t, "applicationId", data.InputFields[0].JSONName)
	for _, f := range data.InputFields {
		if f.JSONName == "comments" {
			assert.Equal(t, "*string", f.GoType)
		}
	}
}

func TestTemplates_RenderParseableGo(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)
	act, _ := reg.Find("notify-status-change")
	data := workerData(act)

	dir := t.TempDir()
	fset := token.NewFileSet()
	for name, tmpl := range templates {
		path := filepath.Join(dir, name)
		require.NoError(t, render(path, name, tmpl, data))
		src, err := os.ReadFile(path)
		require.NoError(t, err)
		_, err = parser.ParseFile(fset, name, src, parser.AllErrors)
		assert.NoError(t, err, name)
	}
}
