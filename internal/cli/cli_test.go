package cli

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"codemcp/internal/model"
)

const completionBody = `{
	"id": "cmpl-1",
	"object": "chat.completion",
	"created": 1718000000,
	"model": "codestral-latest",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "Here you go:\n` + "```python\\ndef f(x):\\n    return x + 1\\n```" + `"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 12, "completion_tokens": 9, "total_tokens": 21}
}`

var managedEnv = []string{
	"MISTRAL_API_KEY", "MISTRAL_BASE_URL",
	"CODEMCP_MODEL", "CODEMCP_MAMBA_MODEL", "CODEMCP_TIMEOUT", "CODEMCP_MIN_INTERVAL",
	"CODEMCP_TRANSPORT", "CODEMCP_LISTEN", "CODEMCP_MCP_PATH", "CODEMCP_AUTH_TOKEN",
	"CODEMCP_RATE_LIMIT_RPS", "CODEMCP_RATE_LIMIT_BURST", "CODEMCP_LOG_FORMAT", "CODEMCP_VERBOSE",
}

// isolateEnv clears every variable config reads and points the user config
// dir at a temp dir.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, key := range managedEnv {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	return dir
}

type fakeAPI struct {
	server     *httptest.Server
	modelCalls atomic.Int32
	chatCalls  atomic.Int32
	lastBody   atomic.Value
}

func newFakeAPI(t *testing.T, modelsStatus int) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
			return
		}
		switch r.URL.Path {
		case "/v1/models":
			api.modelCalls.Add(1)
			w.WriteHeader(modelsStatus)
			if modelsStatus == http.StatusOK {
				_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"codestral-latest","object":"model"},{"id":"codestral-mamba-latest","object":"model"}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		case "/v1/chat/completions", "/v1/fim/completions":
			api.chatCalls.Add(1)
			body, _ := io.ReadAll(r.Body)
			api.lastBody.Store(string(body))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(completionBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(api.server.Close)
	t.Setenv("MISTRAL_BASE_URL", api.server.URL+"/v1")
	t.Setenv("CODEMCP_MIN_INTERVAL", "0")
	return api
}

func execute(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd(strings.NewReader(stdin), &stdout, &stderr)
	root.SetArgs(args)
	code := run(root, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: nil, want: ExitSuccess},
		{err: errors.New("boom"), want: ExitGenericError},
		{err: model.NewError(model.KindConfig, "bad"), want: ExitConfigInvalid},
		{err: model.NewError(model.KindAuth, "bad key"), want: ExitAuthFailed},
		{err: model.NewError(model.KindServer, "down"), want: ExitGenericError},
		{err: exitWith(ExitBindFailure, errors.New("in use")), want: ExitBindFailure},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestVersion(t *testing.T) {
	isolateEnv(t)
	code, out, _ := execute(t, "", "version")
	if code != ExitSuccess || strings.TrimSpace(out) != "codemcp "+Version {
		t.Fatalf("unexpected version output: code=%d out=%q", code, out)
	}
}

func TestConfigPrint_RedactsSecrets(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MISTRAL_API_KEY", "sk-very-secret")
	t.Setenv("CODEMCP_AUTH_TOKEN", "tok-secret")

	code, out, errOut := execute(t, "", "config", "print")
	if code != ExitSuccess {
		t.Fatalf("config print failed: %d %s", code, errOut)
	}
	if strings.Contains(out, "sk-very-secret") || strings.Contains(out, "tok-secret") {
		t.Fatalf("secrets leaked:\n%s", out)
	}
	if !strings.Contains(out, "<redacted>") || !strings.Contains(out, "model: codestral-latest") {
		t.Fatalf("unexpected yaml:\n%s", out)
	}
}

func TestConfigPrint_WorksWithoutKey(t *testing.T) {
	isolateEnv(t)
	code, out, _ := execute(t, "", "config", "print")
	if code != ExitSuccess || !strings.Contains(out, "transport: stdio") {
		t.Fatalf("unexpected result: code=%d out=%s", code, out)
	}
}

func TestConfigInit(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv("CODEMCP_MODEL", "codestral-2501")
	path := filepath.Join(dir, "nested", "config.toml")

	code, out, errOut := execute(t, "", "--config", path, "config", "init")
	if code != ExitSuccess {
		t.Fatalf("config init failed: %d %s", code, errOut)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("expected written path in output: %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written config: %v", err)
	}
	if !strings.Contains(string(data), `model = "codestral-2501"`) || !strings.Contains(string(data), "${MISTRAL_API_KEY}") {
		t.Fatalf("unexpected config file:\n%s", data)
	}

	code, _, errOut = execute(t, "", "--config", path, "config", "init")
	if code != ExitGenericError || !strings.Contains(errOut, "already exists") {
		t.Fatalf("second init should refuse: code=%d err=%q", code, errOut)
	}
	if code, _, _ = execute(t, "", "--config", path, "config", "init", "--force"); code != ExitSuccess {
		t.Fatalf("--force should overwrite, got %d", code)
	}
}

func TestConfigPath(t *testing.T) {
	dir := isolateEnv(t)
	code, out, _ := execute(t, "", "config", "path")
	if code != ExitSuccess || !strings.HasPrefix(strings.TrimSpace(out), dir) {
		t.Fatalf("unexpected path: code=%d out=%q", code, out)
	}
}

func TestServe_MissingKeyIsConfigError(t *testing.T) {
	isolateEnv(t)
	code, _, errOut := execute(t, "", "serve")
	if code != ExitConfigInvalid {
		t.Fatalf("expected exit %d, got %d", ExitConfigInvalid, code)
	}
	if !strings.Contains(errOut, "missing MISTRAL_API_KEY") {
		t.Fatalf("expected actionable message, got %q", errOut)
	}
}

func TestServe_BadTransportIsConfigError(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MISTRAL_API_KEY", "sk-test")
	if code, _, _ := execute(t, "", "serve", "--transport", "grpc"); code != ExitConfigInvalid {
		t.Fatalf("expected exit %d, got %d", ExitConfigInvalid, code)
	}
}

func TestServe_ProbeRejectsBadKey(t *testing.T) {
	isolateEnv(t)
	api := newFakeAPI(t, http.StatusOK)
	t.Setenv("MISTRAL_API_KEY", "sk-wrong")

	code, _, errOut := execute(t, "", "serve")
	if code != ExitAuthFailed {
		t.Fatalf("expected exit %d, got %d (%s)", ExitAuthFailed, code, errOut)
	}
	if api.chatCalls.Load() != 0 {
		t.Fatal("no completion should be attempted")
	}
}

func TestServe_Stdio(t *testing.T) {
	isolateEnv(t)
	api := newFakeAPI(t, http.StatusOK)
	t.Setenv("MISTRAL_API_KEY", "sk-test")

	in := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"code_task","arguments":{"code":"def f(x): return x+","language":"python","task":"fix"}}}` + "\n"
	code, out, errOut := execute(t, in, "serve", "--log-format", "json")
	if code != ExitSuccess {
		t.Fatalf("serve failed: %d %s", code, errOut)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two responses, got %d:\n%s", len(lines), out)
	}
	if !strings.Contains(out, `def f(x):\n    return x + 1`) {
		t.Fatalf("extracted code missing from output:\n%s", out)
	}
	if api.modelCalls.Load() != 1 || api.chatCalls.Load() != 1 {
		t.Fatalf("unexpected API calls: models=%d chat=%d", api.modelCalls.Load(), api.chatCalls.Load())
	}
	if !strings.Contains(errOut, `"event":"credential_ok"`) || !strings.Contains(errOut, `"event":"task_completed"`) {
		t.Fatalf("expected NDJSON events on stderr, got:\n%s", errOut)
	}
}

func TestServe_HTTPBindFailure(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MISTRAL_API_KEY", "sk-test")

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	code, _, errOut := execute(t, "", "serve", "--no-probe", "--transport", "http", "--listen", busy.Addr().String())
	if code != ExitBindFailure {
		t.Fatalf("expected exit %d, got %d (%s)", ExitBindFailure, code, errOut)
	}
}

func TestCheck(t *testing.T) {
	isolateEnv(t)
	newFakeAPI(t, http.StatusOK)
	t.Setenv("MISTRAL_API_KEY", "sk-test")

	code, out, errOut := execute(t, "", "check", "--list")
	if code != ExitSuccess {
		t.Fatalf("check failed: %d %s", code, errOut)
	}
	for _, want := range []string{"credential ok", "2 models", "codestral-mamba-latest"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheck_Failures(t *testing.T) {
	isolateEnv(t)
	newFakeAPI(t, http.StatusServiceUnavailable)
	t.Setenv("MISTRAL_API_KEY", "sk-test")
	if code, _, errOut := execute(t, "", "check"); code != ExitGenericError || !strings.Contains(errOut, "MISTRAL_TRANSPORT") {
		t.Fatalf("unavailable API: code=%d err=%q", code, errOut)
	}

	t.Setenv("MISTRAL_API_KEY", "sk-other")
	if code, _, _ := execute(t, "", "check"); code != ExitAuthFailed {
		t.Fatalf("bad key should exit %d, got %d", ExitAuthFailed, code)
	}
}

func TestRun_FromFile(t *testing.T) {
	isolateEnv(t)
	api := newFakeAPI(t, http.StatusOK)
	t.Setenv("MISTRAL_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "broken.py")
	if err := os.WriteFile(path, []byte("def f(x): return x+\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := execute(t, "", "run", "--task", "fix", "--lang", "python", path)
	if code != ExitSuccess {
		t.Fatalf("run failed: %d %s", code, errOut)
	}
	if out != "def f(x):\n    return x + 1\n" {
		t.Fatalf("unexpected output: %q", out)
	}
	body, _ := api.lastBody.Load().(string)
	if !strings.Contains(body, "fixing bugs") || !strings.Contains(body, "```python") {
		t.Fatalf("unexpected request body: %s", body)
	}
}

func TestRun_StdinWithMamba(t *testing.T) {
	isolateEnv(t)
	api := newFakeAPI(t, http.StatusOK)
	t.Setenv("MISTRAL_API_KEY", "sk-test")

	code, _, errOut := execute(t, "x = ", "run", "--mamba", "-")
	if code != ExitSuccess {
		t.Fatalf("run failed: %d %s", code, errOut)
	}
	body, _ := api.lastBody.Load().(string)
	if !strings.Contains(body, `"model":"codestral-mamba-latest"`) {
		t.Fatalf("mamba model not requested: %s", body)
	}
}

func TestRun_FIM(t *testing.T) {
	isolateEnv(t)
	api := newFakeAPI(t, http.StatusOK)
	t.Setenv("MISTRAL_API_KEY", "sk-test")

	code, _, errOut := execute(t, "def fib(n):\n", "run", "--fim", "--suffix", "    return a\n", "--max-tokens", "64")
	if code != ExitSuccess {
		t.Fatalf("run --fim failed: %d %s", code, errOut)
	}
	body, _ := api.lastBody.Load().(string)
	if !strings.Contains(body, `"suffix":"    return a\n"`) || !strings.Contains(body, `"max_tokens":64`) {
		t.Fatalf("unexpected FIM body: %s", body)
	}
}

func TestRun_InputErrors(t *testing.T) {
	isolateEnv(t)
	api := newFakeAPI(t, http.StatusOK)
	t.Setenv("MISTRAL_API_KEY", "sk-test")

	cases := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{name: "empty stdin", stdin: "  \n", args: []string{"run"}, want: "INVALID_REQUEST"},
		{name: "unknown task", stdin: "x", args: []string{"run", "--task", "refactor"}, want: "unknown task"},
		{name: "missing file", args: []string{"run", filepath.Join(t.TempDir(), "nope.py")}, want: "reading"},
		{name: "mamba with fim", stdin: "x", args: []string{"run", "--mamba", "--fim"}, want: "cannot be combined"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, errOut := execute(t, tc.stdin, tc.args...)
			if code != ExitGenericError || !strings.Contains(errOut, tc.want) {
				t.Fatalf("code=%d err=%q, want exit 1 mentioning %q", code, errOut, tc.want)
			}
		})
	}
	if api.chatCalls.Load() != 0 {
		t.Fatalf("invalid input reached the API %d time(s)", api.chatCalls.Load())
	}
}
