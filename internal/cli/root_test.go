package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/docket/memstore"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "docketctl", cmd.Use)
	assert.Contains(t, cmd.Long, "throughput")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"read"}, {"query"}, {"create"}, {"upsert"}, {"replace"}, {"update"}, {"delete"},
		{"throughput", "get"}, {"throughput", "set"}, {"throughput", "increase"}, {"throughput", "decrease"},
		{"collection", "create"}, {"collection", "delete"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "backend", "db", "collection", "endpoint", "badger-dir"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// run executes args against opts and returns stdout.
func run(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newRootCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// runJSON executes args with JSON output and decodes the payload into out.
func runJSON(t *testing.T, opts *RootOptions, out any, args ...string) {
	t.Helper()
	stdout, err := run(t, opts, append(args, "--format", "json")...)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(stdout), &env))
	require.Equal(t, "ok", env.Status)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

func memoryOptions(t *testing.T) *RootOptions {
	t.Helper()
	t.Setenv("DOCKET_ENV", "")
	t.Setenv("DOCKET_ENDPOINT", "")
	return &RootOptions{conn: memstore.New()}
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, memoryOptions(t), "read", "u1", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestUnknownBackend(t *testing.T) {
	_, err := run(t, &RootOptions{}, "read", "u1", "--backend", "postgres")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestDocumentLifecycle(t *testing.T) {
	opts := memoryOptions(t)

	var created documentOutput
	runJSON(t, opts, &created, "create", "--data", `{"id":"u1","name":"Ann","address":{"city":"Lisbon","zip":"1000"}}`)
	assert.Equal(t, 201, created.Status)
	assert.NotEmpty(t, created.ETag)
	assert.NotContains(t, created.Document, "_etag")

	var updated documentOutput
	runJSON(t, opts, &updated, "update", "--data", `{"id":"u1","address":{"city":"Porto"}}`)
	assert.Equal(t, map[string]any{"city": "Porto", "zip": "1000"}, updated.Document["address"])

	var read documentOutput
	runJSON(t, opts, &read, "read", "u1")
	assert.Equal(t, updated.ETag, read.ETag)
	assert.Equal(t, "Ann", read.Document["name"])

	_, err := run(t, opts, "replace", "--data", `{"id":"u1","name":"Bea"}`, "--if-match", created.ETag)
	assert.Equal(t, ExitConflict, GetExitCode(err))

	runJSON(t, opts, nil, "replace", "--data", `{"id":"u1","name":"Bea"}`, "--if-match", read.ETag)

	out, err := run(t, opts, "delete", "u1")
	require.NoError(t, err)
	assert.Equal(t, "deleted u1\n", out)

	_, err = run(t, opts, "read", "u1")
	assert.Equal(t, ExitNotFound, GetExitCode(err))
}

func TestWriteErrors(t *testing.T) {
	opts := memoryOptions(t)
	runJSON(t, opts, nil, "upsert", "--data", `{"id":"u1"}`)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"conflict", []string{"create", "--data", `{"id":"u1"}`}, ExitConflict},
		{"bad json", []string{"create", "--data", `{nope`}, ExitCommandError},
		{"not an object", []string{"create", "--data", `null`}, ExitCommandError},
		{"update without id", []string{"update", "--data", `{"a":1}`}, ExitCommandError},
		{"update missing", []string{"update", "--data", `{"id":"ghost","a":1}`}, ExitNotFound},
		{"delete missing", []string{"delete", "ghost"}, ExitNotFound},
		{"blank partition key", []string{"read", "u1", "--partition-key", " "}, ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, opts, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
		})
	}
}

func TestQuery(t *testing.T) {
	opts := memoryOptions(t)
	for _, doc := range []string{
		`{"id":"a","status":"open"}`,
		`{"id":"b","status":"closed"}`,
		`{"id":"c","status":"open"}`,
		`{"id":"d","status":"open"}`,
		`{"id":"e","status":"closed"}`,
	} {
		runJSON(t, opts, nil, "create", "--data", doc)
	}

	var all queryOutput
	runJSON(t, opts, &all, "query", "--page-size", "2", "--limit", "-1")
	assert.Len(t, all.Documents, 5)
	assert.Equal(t, 3, all.Pages)

	var limited queryOutput
	runJSON(t, opts, &limited, "query", "--page-size", "2", "--limit", "3")
	assert.Len(t, limited.Documents, 3)
	assert.Equal(t, 2, limited.Pages)

	var open queryOutput
	runJSON(t, opts, &open, "query", "--filter", "#s = :s", "--name", "#s=status", "--params", `{":s":"open"}`)
	ids := make([]string, 0, len(open.Documents))
	for _, d := range open.Documents {
		ids = append(ids, d.ID())
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids)

	var first queryOutput
	runJSON(t, opts, &first, "query", "--page", "--page-size", "3")
	assert.Len(t, first.Documents, 3)
	require.NotEmpty(t, first.Continuation)

	var rest queryOutput
	runJSON(t, opts, &rest, "query", "--page", "--page-size", "3", "--continuation", first.Continuation)
	assert.Len(t, rest.Documents, 2)
	assert.Empty(t, rest.Continuation)

	_, err := run(t, opts, "query", "--params", "[")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestThroughputCommands(t *testing.T) {
	opts := memoryOptions(t)

	var v int
	runJSON(t, opts, &v, "throughput", "get")
	assert.Equal(t, 400, v)

	runJSON(t, opts, &v, "throughput", "increase", "300")
	assert.Equal(t, 700, v)

	runJSON(t, opts, &v, "throughput", "increase", "1000", "--ceiling", "1200")
	assert.Equal(t, 1200, v)

	runJSON(t, opts, &v, "throughput", "decrease", "5000")
	assert.Equal(t, 400, v)

	runJSON(t, opts, &v, "throughput", "set", "20000")
	assert.Equal(t, 10000, v)

	out, err := run(t, opts, "throughput", "get")
	require.NoError(t, err)
	assert.Equal(t, "10000\n", out)

	_, err = run(t, opts, "throughput", "set", "lots")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCollectionCommands(t *testing.T) {
	opts := memoryOptions(t)
	opts.conn = memstore.New(memstore.WithoutAutoCreate())

	_, err := run(t, opts, "throughput", "get")
	assert.Equal(t, ExitNotFound, GetExitCode(err))

	runJSON(t, opts, nil, "collection", "create", "--throughput", "800")

	var v int
	runJSON(t, opts, &v, "throughput", "get")
	assert.Equal(t, 800, v)

	_, err = run(t, opts, "collection", "create")
	assert.Equal(t, ExitConflict, GetExitCode(err))

	runJSON(t, opts, nil, "collection", "delete")
	_, err = run(t, opts, "collection", "delete")
	assert.Equal(t, ExitNotFound, GetExitCode(err))
}

func TestBadgerBackendFromConfig(t *testing.T) {
	t.Setenv("DOCKET_ENV", "")
	t.Setenv("DOCKET_ENDPOINT", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "docket.yaml")
	config := "backend: badger\nbadger_dir: " + filepath.Join(dir, "data") + "\ndatabase: app\ncollection: people\n"
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))

	runJSON(t, &RootOptions{}, nil, "create", "--config", path, "--data", `{"id":"u1","name":"Ann"}`)

	var read documentOutput
	runJSON(t, &RootOptions{}, &read, "read", "u1", "--config", path)
	assert.Equal(t, "Ann", read.Document["name"])
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, &RootOptions{}, "read", "u1", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
