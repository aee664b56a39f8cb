package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "trusted", "refined", "load-lookups", "load-raw", "export", "migrate"}, names)

	for _, flag := range []string{"env-file", "config", "processing-date", "log-level"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCommand_RejectsArguments(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"trusted", "extra"})
	assert.Error(t, root.Execute())
}

func TestEmbeddedConfig_IsValidYAML(t *testing.T) {
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(embeddedConfig, &doc))
	assert.Contains(t, doc, "surfin")
	application, ok := doc["application"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, application, "sihrd")
}
