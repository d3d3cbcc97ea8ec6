package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goosewin/qforia/internal/backend"
	"github.com/goosewin/qforia/internal/config"
	"github.com/goosewin/qforia/internal/core"
	"github.com/goosewin/qforia/internal/export"
	"github.com/goosewin/qforia/internal/render"
	"github.com/goosewin/qforia/internal/server"
	"github.com/goosewin/qforia/internal/state"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeOutput = `Sure! {"generation_details": {"target_query_count": 2, "reasoning_for_count": "narrow query"},
"expanded_queries": [
 {"query": "wide toe box hiking boots", "type": "reformulation", "user_intent": "find boots", "reasoning": "same need"},
 {"query": "hiking boots vs trail runners", "type": "comparative", "user_intent": "compare", "reasoning": "options"}
]}`

type stubBackend struct {
	prompts []string
}

func (s *stubBackend) CredentialKey() string { return "stub.api_key" }
func (s *stubBackend) CheckCredential(apiKey string) error { return nil }
func (s *stubBackend) GetModels() []string { return []string{"stub-1"} }

func (s *stubBackend) Generate(ctx context.Context, opts backend.GenerateOptions) (string, error) {
	s.prompts = append(s.prompts, opts.Prompt)
	return fakeOutput, nil
}

var stub = &stubBackend{}

func init() {
	if err := backend.Register("stub", stub); err != nil {
		panic(err)
	}
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("QFORIA_CONFIG_DIR", dir)
	t.Setenv("QFORIA_DEFAULT_CONFIG", filepath.Join(dir, "missing-default.yaml"))
	t.Setenv("QFORIA_STATE_DIR", dir)
	t.Setenv("QFORIA_STATE_FILE", filepath.Join(dir, "state.json"))
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("QFORIA_MODE", "")
	return dir
}

// resetFlags restores every flag to its default; cobra keeps values between
// executions of the same command tree.
func resetFlags(command *cobra.Command) {
	reset := func(flag *pflag.Flag) {
		_ = flag.Value.Set(flag.DefValue)
		flag.Changed = false
	}
	command.Flags().VisitAll(reset)
	command.PersistentFlags().VisitAll(reset)
	for _, child := range command.Commands() {
		resetFlags(child)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReadQuery(t *testing.T) {
	query, err := readQuery([]string{"best", "hiking", "boots"}, strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "best hiking boots", query)

	query, err = readQuery([]string{"-"}, strings.NewReader("  tokyo in winter\n"))
	require.NoError(t, err)
	assert.Equal(t, "tokyo in winter", query)

	_, err = readQuery([]string{"   "}, strings.NewReader(""))
	assert.Error(t, err)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "  ", " b ", "c"))
	assert.Equal(t, "", firstNonEmpty("", " "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestParseBool(t *testing.T) {
	assert.True(t, parseBool("yes", false))
	assert.False(t, parseBool("off", true))
	assert.True(t, parseBool("", true))
	assert.False(t, parseBool("maybe", false))
}

func TestWriteRunRejectsMissingResult(t *testing.T) {
	var out bytes.Buffer
	err := writeRun(&out, &out, export.FormatJSON, "", core.RunResult{Status: core.StatusFailed})
	assert.Error(t, err)
}

func TestWriteRunSavesTableAsCSV(t *testing.T) {
	dir := t.TempDir()
	result, err := core.ParseFanout(fakeOutput)
	require.NoError(t, err)

	var out bytes.Buffer
	path := filepath.Join(dir, "fanout")
	require.NoError(t, writeRun(&out, &out, export.FormatTable, path, core.RunResult{Result: &result}))
	assert.Contains(t, out.String(), "Saved 2 queries")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "query,type,user_intent,reasoning"))
}

func TestWriteRunNoQueriesNoticeGoesToStderr(t *testing.T) {
	result, err := core.ParseFanout(`{"generation_details": {"target_query_count": 10}, "expanded_queries": []}`)
	require.NoError(t, err)
	run := core.RunResult{Result: &result, Status: core.StatusNoQueries}

	for _, format := range []export.Format{export.FormatCSV, export.FormatJSON, export.FormatYAML, export.FormatMarkdown} {
		t.Run(string(format), func(t *testing.T) {
			var out, errOut bytes.Buffer
			require.NoError(t, writeRun(&out, &errOut, format, "", run))
			assert.Contains(t, errOut.String(), render.NoQueries())
			assert.NotContains(t, out.String(), "returned no queries")
			assert.Contains(t, errOut.String(), "planned 10 queries but generated 0")
		})
	}
}

func TestRunCommandStoresSessionAndExports(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, "", "run", "--backend", "stub", "--api-key", "k", "--no-spinner",
		"-f", "json", "--session", "boots", "-m", "complex", "best hiking boots")
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	queries, ok := decoded["expanded_queries"].([]interface{})
	require.True(t, ok)
	assert.Len(t, queries, 2)

	require.NotEmpty(t, stub.prompts)
	assert.Contains(t, stub.prompts[len(stub.prompts)-1], "at least 20")

	record, found, err := state.Get("boots")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, string(core.StatusSuccess), record.Status)
	assert.Equal(t, core.ModeComplex, record.Mode)
	assert.Equal(t, "stub-1", record.Model)
	require.NotNil(t, record.Result)
	assert.Equal(t, 2, record.Result.ActualCount())

	last, ok := holder.Last()
	require.True(t, ok)
	assert.Equal(t, "best hiking boots", last.Request.Query)

	target := filepath.Join(dir, "out.md")
	out, err = execute(t, "", "export", "--session", "boots", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 queries")
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "| hiking boots vs trail runners |")

	out, err = execute(t, "", "show", "--session", "boots", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "wide toe box hiking boots")
}

func TestRunCommandMissingCredential(t *testing.T) {
	isolate(t)
	calls := len(stub.prompts)

	_, err := execute(t, "", "run", "--backend", "stub", "--no-spinner", "--session", "nokey", "q")
	require.Error(t, err)
	assert.Equal(t, "credential_missing", core.ErrorKind(err))
	assert.Equal(t, calls, len(stub.prompts))

	_, found, err := state.Get("nokey")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestParseCommandReadsStdin(t *testing.T) {
	isolate(t)

	out, err := execute(t, fakeOutput, "parse", "-", "-f", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "query,type,user_intent,reasoning", lines[0])

	_, err = execute(t, "no json here", "parse", "-", "-f", "csv")
	require.Error(t, err)
	assert.Equal(t, "no_json_found", core.ErrorKind(err))
}

func TestPromptCommand(t *testing.T) {
	isolate(t)

	out, err := execute(t, "", "prompt", "-m", "simple", "tokyo in winter")
	require.NoError(t, err)
	assert.Contains(t, out, `"tokyo in winter"`)
	assert.Contains(t, out, "at least 10")
}

func writeGlobalConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	_, err := config.LoadConfig(dir)
	require.NoError(t, err)
}

func TestResolveModelPrefersBackendSetting(t *testing.T) {
	dir := isolate(t)

	writeGlobalConfig(t, dir, "defaults:\n  model: gemini-2.5-pro\n")
	assert.Equal(t, "stub-1", resolveModel(stub, "stub", ""))
	assert.Equal(t, "stub-2", resolveModel(stub, "stub", "stub-2"))

	writeGlobalConfig(t, dir, "defaults:\n  model: stub-1\nstub:\n  model: stub-large\n")
	assert.Equal(t, "stub-large", resolveModel(stub, "stub", ""))
}

func TestServeFanoutMarksRecordAsServerRun(t *testing.T) {
	dir := isolate(t)
	writeGlobalConfig(t, dir, "stub:\n  api_key: k\n")

	record, err := serveFanout(context.Background(), server.FanoutRequest{Query: "solar panels", Backend: "stub", Session: "api"})
	require.NoError(t, err)
	assert.Equal(t, state.OriginServer, record.Origin)

	stored, found, err := state.Get("api")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, state.OriginServer, stored.Origin)
}

func TestShowDeleteRemovesFinishedSession(t *testing.T) {
	isolate(t)

	_, err := execute(t, "", "run", "--backend", "stub", "--api-key", "k", "--no-spinner",
		"-f", "json", "--session", "old", "tents")
	require.NoError(t, err)

	out, err := execute(t, "", "show", "--session", "old", "--delete")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted session: old")

	_, found, err := state.Get("old")
	require.NoError(t, err)
	assert.False(t, found)

	running, err := state.Begin("busy", state.OriginCLI, core.FanoutRequest{Query: "q", Mode: core.ModeSimple}, "stub", "stub-1")
	require.NoError(t, err)
	_, err = execute(t, "", "show", "--session", running.Session, "--delete")
	require.Error(t, err)
	_, found, err = state.Get("busy")
	require.NoError(t, err)
	assert.True(t, found)
}
