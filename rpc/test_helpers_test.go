package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rafflechain/core/events"
	"rafflechain/core/state"
	"rafflechain/indexer"
	"rafflechain/native/lottery"
	"rafflechain/storage"
)

const testSecret = "unit-test-secret"

var testAuth = AuthConfig{
	HMACSecret: testSecret,
	Issuer:     "rafflechain",
	Audience:   "lottery-rpc",
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type testEnv struct {
	t       *testing.T
	server  *Server
	engine  *lottery.Engine
	state   *state.Manager
	journal *indexer.Journal
	http    *httptest.Server
}

type envOptions struct {
	faucet    bool
	rateLimit RateLimit
	journal   bool
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	m := state.NewManager(storage.NewMemDB())
	engine := lottery.NewEngine()
	engine.SetStore(m)
	engine.SetEntropy(lottery.FixedEntropy{0x07})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(Config{Auth: testAuth, RateLimit: opts.rateLimit, EnableFaucet: opts.faucet}, engine, m, logger)
	emitters := events.Multi{srv.Hub()}

	env := &testEnv{t: t, server: srv, engine: engine, state: m}
	if opts.journal {
		journal, err := indexer.Open(filepath.Join(t.TempDir(), "events.db"), logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = journal.Close() })
		srv.SetJournal(journal)
		emitters = append(emitters, journal)
		env.journal = journal
	}
	engine.SetEmitter(emitters)

	env.http = httptest.NewServer(srv.Handler())
	t.Cleanup(env.http.Close)
	return env
}

func testAccount(fill byte) string {
	return formatAccount(testArray(fill))
}

func testArray(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (e *testEnv) token(subject string) string {
	e.t.Helper()
	tok, err := IssueToken(testAuth, subject, time.Hour, time.Now())
	require.NoError(e.t, err)
	return tok
}

func (e *testEnv) call(token, method string, params interface{}) (int, rpcEnvelope) {
	e.t.Helper()
	body := map[string]interface{}{"jsonrpc": jsonRPCVersion, "id": 1, "method": method}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	data, err := json.Marshal(body)
	require.NoError(e.t, err)
	req, err := http.NewRequest(http.MethodPost, e.http.URL+"/rpc", bytes.NewReader(data))
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.http.Client().Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	var env rpcEnvelope
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (e *testEnv) mustCall(token, method string, params, out interface{}) {
	e.t.Helper()
	status, env := e.call(token, method, params)
	require.Nil(e.t, env.Error, "%s failed: %+v", method, env.Error)
	require.Equal(e.t, http.StatusOK, status)
	if out != nil {
		require.NoError(e.t, json.Unmarshal(env.Result, out))
	}
}

// expectError asserts the call failed with the given JSON-RPC code.
func (e *testEnv) expectError(token, method string, params interface{}, status, code int) *RPCError {
	e.t.Helper()
	gotStatus, env := e.call(token, method, params)
	require.NotNil(e.t, env.Error, "%s unexpectedly succeeded", method)
	require.Equal(e.t, code, env.Error.Code, "%s: %+v", method, env.Error)
	require.Equal(e.t, status, gotStatus)
	return env.Error
}
