package apidocs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestSwaggerDocRegistered(t *testing.T) {
	doc, err := swag.ReadDoc()
	require.NoError(t, err)

	var spec map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &spec), "rendered doc is valid JSON")
	assert.Equal(t, "2.0", spec["swagger"])

	paths, ok := spec["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/connect", "/test", "/query", "/disconnect", "/status", "/sessions/{id}", "/sessions/{id}/events", "/{entity}"} {
		assert.Contains(t, paths, p)
	}
}
