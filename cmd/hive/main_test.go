package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcoderx/hive/pkg/storage"
)

func TestLocalOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "TOKEN=abc\nHIVE_REDIS_ADDR=localhost:6379\nHIVE_SSL_VERIFY=false\nbase_url=http://x.test\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	values, err := localOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, storage.Values{
		"TOKEN":    {Value: "abc", Enabled: true},
		"base_url": {Value: "http://x.test", Enabled: true},
	}, values)
}

func TestLocalOverrides_MissingFile(t *testing.T) {
	values, err := localOverrides(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestMergeVariables(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore(t.TempDir())

	require.NoError(t, mergeVariables(ctx, store, "imported", storage.Values{
		"base_url": {Value: "https://x.test", Enabled: true},
	}))
	env, err := store.Environment(ctx, "imported")
	require.NoError(t, err)
	assert.Equal(t, "imported", env.Name)
	assert.Equal(t, "https://x.test", env.Values["base_url"].Value)

	require.NoError(t, mergeVariables(ctx, store, "imported", storage.Values{
		"base_url": {Value: "https://y.test", Enabled: true},
		"retries":  {Value: "3", Enabled: false},
	}))
	env, err = store.Environment(ctx, "imported")
	require.NoError(t, err)
	assert.Len(t, env.Values, 2)
	assert.Equal(t, "https://y.test", env.Values["base_url"].Value)
}

func TestValuesText(t *testing.T) {
	got := valuesText(storage.Values{
		"b":   {Value: "2", Enabled: true},
		"a":   {Value: "1", Enabled: true},
		"off": {Value: "x", Enabled: false},
	})
	assert.Equal(t, "a=1\nb=2\n# off=x\n", got)
}

func TestValuesDiff(t *testing.T) {
	before := storage.Values{"a": {Value: "1", Enabled: true}}
	after := storage.Values{"a": {Value: "2", Enabled: true}}

	diff := valuesDiff("dev", before, after)
	assert.Contains(t, diff, "--- a/dev")
	assert.Contains(t, diff, "+++ b/dev")
	assert.Contains(t, diff, "-a=1")
	assert.Contains(t, diff, "+a=2")
}

func TestStyleConsoleLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: "[request] hello", want: "hello"},
		{line: "[folder][ERROR] boom", want: "[folder][ERROR] boom"},
		{line: "[collection] [warn] pm.require is not supported", want: "[warn] pm.require is not supported"},
		{line: "untagged", want: "untagged"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Contains(t, styleConsoleLine(tt.line), tt.want)
		})
	}
}

func TestScriptArg(t *testing.T) {
	got, err := scriptArg("console.log('x');")
	require.NoError(t, err)
	assert.Equal(t, "console.log('x');", got)

	path := filepath.Join(t.TempDir(), "pre.js")
	require.NoError(t, os.WriteFile(path, []byte("pm.environment.set('a', 1);"), 0644))
	got, err = scriptArg("@" + path)
	require.NoError(t, err)
	assert.Equal(t, "pm.environment.set('a', 1);", got)

	_, err = scriptArg("@" + filepath.Join(t.TempDir(), "missing.js"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "read script"))
}

func TestCodeBlock(t *testing.T) {
	assert.Equal(t, "```json\n{}\n```\n", codeBlock("json", "{}\n\n"))
}
