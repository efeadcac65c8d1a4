package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fuserr "github.com/Aman-CERP/fusionidx/internal/errors"
	"github.com/Aman-CERP/fusionidx/internal/store"
	"github.com/Aman-CERP/fusionidx/internal/value"
	"github.com/Aman-CERP/fusionidx/pkg/version"
)

// isolate keeps user and project config files and FUSIONIDX_* variables
// out of the test and returns a fresh data directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home+"/.config")
	t.Setenv("NO_COLOR", "1")
	for _, k := range []string{"FUSIONIDX_DATA_DIR", "FUSIONIDX_DEFAULT_VERSION", "FUSIONIDX_BACKENDS", "FUSIONIDX_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
	return t.TempDir()
}

// run executes the CLI with --data-dir set and returns its combined output.
func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--data-dir", dataDir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func mustRun(t *testing.T, dataDir string, args ...string) string {
	t.Helper()
	out, err := run(t, dataDir, args...)
	require.NoError(t, err, out)
	return out
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	dataDir := isolate(t)

	out := mustRun(t, dataDir, "--help")

	for _, sub := range []string{"create", "add", "remove", "query", "describe", "list", "drop", "versions", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestCLI_IndexLifecycle(t *testing.T) {
	// Given: an empty data directory
	dataDir := isolate(t)

	// When: an index is created and populated
	out := mustRun(t, dataDir, "create", "people", "--keys", "name")
	assert.Contains(t, out, "created index people")
	assert.Contains(t, out, "text+native-1.0")

	out = mustRun(t, dataDir, "add", "people", "1", "alice")
	assert.Contains(t, out, "indexed entity 1")
	assert.Contains(t, out, "text")
	mustRun(t, dataDir, "add", "people", "2", "42")
	mustRun(t, dataDir, "add", "people", "3", "alicia")

	// Then: queries reach the right backend
	assert.Equal(t, "1\n", mustRun(t, dataDir, "query", "people", "exact", "alice"))
	assert.Equal(t, "2\n", mustRun(t, dataDir, "query", "people", "exact", "42.0"))
	assert.Equal(t, "1\n3\n", mustRun(t, dataDir, "query", "people", "prefix", "ali"))
	assert.Equal(t, "3\n", mustRun(t, dataDir, "query", "people", "contains", "ici"))

	out = mustRun(t, dataDir, "--json", "query", "people", "exists")
	var res queryResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []int64{1, 2, 3}, res.EntityIDs)
	assert.Equal(t, "exists", res.Kind)

	out = mustRun(t, dataDir, "--json", "describe", "people")
	var view indexView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, map[string]int{"generic": 1, "text": 2}, view.Entries)
	assert.Equal(t, []string{"name"}, view.PropertyKeys)

	out = mustRun(t, dataDir, "list")
	assert.Contains(t, out, "people")

	// When: an entry is removed and the index dropped
	mustRun(t, dataDir, "remove", "people", "1", "alice")
	assert.Equal(t, "", mustRun(t, dataDir, "query", "people", "exact", "alice"))

	out = mustRun(t, dataDir, "drop", "people")
	assert.Contains(t, out, "dropped index people")

	out = mustRun(t, dataDir, "list")
	assert.Contains(t, out, "no indexes")
}

func TestCLI_RangeQuery(t *testing.T) {
	dataDir := isolate(t)
	mustRun(t, dataDir, "create", "ages", "--keys", "age")
	for id, age := range map[string]string{"1": "17", "2": "18", "3": "40", "4": "65"} {
		mustRun(t, dataDir, "add", "ages", id, age)
	}

	out := mustRun(t, dataDir, "query", "ages", "range", "--gte", "18", "--lt", "65")

	assert.Equal(t, "2\n3\n", out)
}

func TestCLI_CompositeIndex(t *testing.T) {
	dataDir := isolate(t)
	mustRun(t, dataDir, "create", "pairs", "--keys", "first,last")

	out := mustRun(t, dataDir, "add", "pairs", "1", "ada", "lovelace")
	assert.Contains(t, out, "generic")

	assert.Equal(t, "1\n", mustRun(t, dataDir, "query", "pairs", "exact", "ada", "lovelace"))

	_, err := run(t, dataDir, "add", "pairs", "2", "ada")
	assert.Equal(t, fuserr.ErrCodeInvalidInput, fuserr.GetCode(err))
}

func TestCLI_SkippedValue(t *testing.T) {
	dataDir := isolate(t)
	mustRun(t, dataDir, "create", "people", "--keys", "name")

	out := mustRun(t, dataDir, "add", "people", "5", "null")

	assert.Contains(t, out, "skipped entity 5")
	assert.Equal(t, "", mustRun(t, dataDir, "query", "people", "exists"))
}

func TestCLI_CreateRefusedWhenBackendsMissing(t *testing.T) {
	// Given: only the generic backend configured
	dataDir := isolate(t)
	t.Setenv("FUSIONIDX_BACKENDS", "generic")

	// When
	_, err := run(t, dataDir, "create", "people", "--keys", "name")

	// Then
	require.Error(t, err)
	assert.Equal(t, fuserr.ErrCodeSlotMismatch, fuserr.GetCode(err))

	out := mustRun(t, dataDir, "create", "people", "--keys", "name", "--selector", "native-1.0")
	assert.Contains(t, out, "native-1.0")
}

func TestCLI_Versions(t *testing.T) {
	dataDir := isolate(t)
	t.Setenv("FUSIONIDX_BACKENDS", "generic")

	out := mustRun(t, dataDir, "--json", "versions")

	var views []selectorView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 2)
	assert.Equal(t, selectorView{Version: "native-1.0", Slots: []string{"generic"}, Supported: true}, views[0])
	assert.Equal(t, selectorView{Version: "text+native-1.0", Slots: []string{"generic", "text"}, Default: true}, views[1])
}

func TestCLI_OpenUnknownIndex(t *testing.T) {
	dataDir := isolate(t)

	_, err := run(t, dataDir, "query", "missing", "exists")

	assert.Equal(t, fuserr.ErrCodeIndexNotFound, fuserr.GetCode(err))
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		args    []string
		bounds  rangeFlags
		want    store.QueryKind
		wantErr bool
	}{
		{name: "exact", kind: "exact", args: []string{"alice"}, want: store.QueryExact},
		{name: "exact needs values", kind: "exact", wantErr: true},
		{name: "range", kind: "range", bounds: rangeFlags{gte: "1"}, want: store.QueryRange},
		{name: "range rejects args", kind: "range", args: []string{"1"}, wantErr: true},
		{name: "conflicting lower bounds", kind: "range", bounds: rangeFlags{gt: "1", gte: "2"}, wantErr: true},
		{name: "conflicting upper bounds", kind: "range", bounds: rangeFlags{lt: "1", lte: "2"}, wantErr: true},
		{name: "prefix", kind: "prefix", args: []string{"al"}, want: store.QueryPrefix},
		{name: "prefix needs one arg", kind: "prefix", wantErr: true},
		{name: "contains", kind: "CONTAINS", args: []string{"li"}, want: store.QueryContains},
		{name: "exists", kind: "exists", want: store.QueryExists},
		{name: "unknown", kind: "fuzzy", args: []string{"x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := buildQuery(tt.kind, tt.args, tt.bounds)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, fuserr.ErrCodeInvalidQuery, fuserr.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Kind)
		})
	}
}

func TestRangeFlags_Bounds(t *testing.T) {
	q, err := rangeFlags{gt: "10", lte: "20"}.query()
	require.NoError(t, err)

	assert.Equal(t, int64(10), q.Lower)
	assert.False(t, q.IncludeLower)
	assert.Equal(t, int64(20), q.Upper)
	assert.True(t, q.IncludeUpper)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		arg  string
		want value.Value
	}{
		{"42", int64(42)},
		{"4.5", 4.5},
		{"true", true},
		{"alice", "alice"},
		{`"42"`, "42"},
		{"null", nil},
		{"[1,2]", []any{int64(1), int64(2)}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseValue(tt.arg), tt.arg)
	}
}

func TestParseEntityID(t *testing.T) {
	id, err := parseEntityID("17")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)

	_, err = parseEntityID("x")
	assert.Equal(t, fuserr.ErrCodeInvalidInput, fuserr.GetCode(err))
}

func TestReportError(t *testing.T) {
	err := fuserr.Newf(fuserr.ErrCodeIndexNotFound, "index %q not found", "people")

	var plain bytes.Buffer
	(&app{}).reportError(&plain, err)
	assert.Contains(t, plain.String(), "Error: index \"people\" not found")
	assert.Contains(t, plain.String(), "Code: ERR_408_INDEX_NOT_FOUND")

	var js bytes.Buffer
	(&app{jsonOutput: true}).reportError(&js, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &parsed))
	assert.Equal(t, "ERR_408_INDEX_NOT_FOUND", parsed["code"])
	assert.NotContains(t, plain.String(), "retry")
}

func TestReportError_DebugShowsCause(t *testing.T) {
	err := fuserr.IOError("create data directory", errors.New("permission denied")).
		WithDetail("path", "/data")

	var plain bytes.Buffer
	(&app{}).reportError(&plain, err)
	assert.NotContains(t, plain.String(), "permission denied")

	var debug bytes.Buffer
	(&app{debug: true}).reportError(&debug, err)
	assert.Contains(t, debug.String(), "cause: permission denied")
	assert.Contains(t, debug.String(), "path: /data")
	assert.Contains(t, debug.String(), "[ERR_202_IO_FAILED]")
}

func TestReportError_RetryableGetsHint(t *testing.T) {
	err := fmt.Errorf("open people: %w",
		fuserr.Newf(fuserr.ErrCodeIndexLocked, "index %q is in use by another process", "people"))

	var out bytes.Buffer
	(&app{}).reportError(&out, err)

	assert.Contains(t, out.String(), "ERR_207_INDEX_LOCKED")
	assert.Contains(t, out.String(), "retry the command")
}

func TestVersionCmd(t *testing.T) {
	dataDir := isolate(t)

	out := mustRun(t, dataDir, "version")
	assert.Contains(t, out, "fusionidx "+version.Version)

	out = mustRun(t, dataDir, "version", "--short")
	assert.Equal(t, version.Version, strings.TrimSpace(out))

	out = mustRun(t, dataDir, "--json", "version")
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestConfigCmd(t *testing.T) {
	dataDir := isolate(t)

	out := mustRun(t, dataDir, "config", "init")
	assert.Contains(t, out, "config.yaml")

	_, err := run(t, dataDir, "config", "init")
	assert.Error(t, err)
	mustRun(t, dataDir, "config", "init", "--force")

	out = mustRun(t, dataDir, "config", "show")
	assert.Contains(t, out, "default_version: text+native-1.0")
	assert.Contains(t, out, dataDir)
}
