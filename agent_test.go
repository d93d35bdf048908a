package agentshell

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashframe/agentshell/mcp"
	"github.com/hashframe/agentshell/overflow"
)

// fakeEngine plays back scripted completions and records every request.
type fakeEngine struct {
	mu          sync.Mutex
	completions []*Completion
	err         error
	requests    []CompletionRequest
	closeCalls  int
}

func (f *fakeEngine) Complete(_ context.Context, req CompletionRequest) (*Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.completions) == 0 {
		return &Completion{Text: "done"}, nil
	}
	next := f.completions[0]
	f.completions = f.completions[1:]
	return next, nil
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeEngine) request(t *testing.T, i int) CompletionRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.requests), i)
	return f.requests[i]
}

// echoTool is a minimal local tool for registry round trips.
type echoInput struct {
	Value string `json:"value" jsonschema:"required"`
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input back" }
func (echoTool) Execute(_ context.Context, input echoInput) (*ToolResult, error) {
	return TextResult("echo: " + input.Value), nil
}

func newTestAgent(t *testing.T, eng Engine, opts ...AgentOption) *Agent {
	t.Helper()
	agent := New(append([]AgentOption{WithEngine(eng)}, opts...)...)
	require.NoError(t, agent.Initialize(context.Background()))
	t.Cleanup(func() { _ = agent.Cleanup() })
	return agent
}

func TestInitialize_RequiresEngine(t *testing.T) {
	agent := New()
	err := agent.Initialize(context.Background())
	require.ErrorIs(t, err, ErrInitialization)
	require.ErrorIs(t, err, ErrNoEngine)
}

func TestInitialize_Idempotent(t *testing.T) {
	agent := newTestAgent(t, &fakeEngine{})
	require.NoError(t, agent.Initialize(context.Background()))
}

func TestInitialize_ServerFailureIsNotFatal(t *testing.T) {
	agent := newTestAgent(t, &fakeEngine{}, WithServers(mcp.ServerConfig{
		Name:        "broken",
		Transport:   mcp.TransportStdio,
		Command:     "/nonexistent/tool-server",
		Enabled:     true,
		AutoConnect: true,
	}))

	assert.Empty(t, agent.GetAvailableTools(), "a failed server contributes no tools")

	_, err := agent.ExecuteToolCall(context.Background(), "mcp__broken__anything", nil)
	require.ErrorIs(t, err, mcp.ErrServerNotConnected)
}

func TestProcessMessage_NotInitialized(t *testing.T) {
	agent := New(WithEngine(&fakeEngine{}))
	_, err := agent.ProcessMessage(context.Background(), UserMessage{Content: "hi"})
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestProcessMessage_PlainCompletion(t *testing.T) {
	eng := &fakeEngine{completions: []*Completion{{Text: "hello there"}}}
	agent := newTestAgent(t, eng, WithSystemPrompt("be brief"))

	resp, err := agent.ProcessMessage(context.Background(), UserMessage{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.True(t, strings.HasPrefix(resp.ID, "msg_"))
	assert.Empty(t, resp.TransactionBytes)

	req := eng.request(t, 0)
	assert.Equal(t, "be brief", req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, RoleUser, req.Messages[0].Role)
	assert.Equal(t, "hi", req.Messages[0].Text)
}

func TestProcessMessage_HistoryPrecedesMessage(t *testing.T) {
	eng := &fakeEngine{}
	agent := newTestAgent(t, eng)

	_, err := agent.ProcessMessage(context.Background(), UserMessage{
		Content: "and now?",
		History: []Message{
			{Role: RoleUser, Text: "first"},
			{Role: RoleAssistant, Text: "second"},
		},
	})
	require.NoError(t, err)

	req := eng.request(t, 0)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "first", req.Messages[0].Text)
	assert.Equal(t, "second", req.Messages[1].Text)
	assert.Equal(t, "and now?", req.Messages[2].Text)
}

func TestProcessMessage_LocalToolRound(t *testing.T) {
	eng := &fakeEngine{completions: []*Completion{
		{ToolCalls: []ToolRequest{{ID: "t1", Name: "echo", Arguments: json.RawMessage(`{"value":"ping"}`)}}},
		{Text: "the tool said ping"},
	}}
	agent := newTestAgent(t, eng)
	RegisterTool(agent.Tools(), echoTool{})

	resp, err := agent.ProcessMessage(context.Background(), UserMessage{Content: "use the tool"})
	require.NoError(t, err)
	assert.Equal(t, "the tool said ping", resp.Text)

	// The second engine call sees the assistant's tool request and its result.
	second := eng.request(t, 1)
	require.Len(t, second.Messages, 3)
	assert.Equal(t, "echo", second.Messages[1].ToolCalls[0].Name)
	results := second.Messages[2].ToolResults
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].ID)
	assert.Equal(t, "echo: ping", results[0].Content)
	assert.False(t, results[0].IsError)

	// The engine was offered the tool.
	require.Len(t, eng.request(t, 0).Tools, 1)
	assert.Equal(t, "echo", eng.request(t, 0).Tools[0].Name)
}

func TestProcessMessage_OptionalToolDegrades(t *testing.T) {
	eng := &fakeEngine{completions: []*Completion{
		{ToolCalls: []ToolRequest{{ID: "t1", Name: "no_such_tool"}}},
		{Text: "sorry, that tool is down"},
	}}
	agent := newTestAgent(t, eng)

	resp, err := agent.ProcessMessage(context.Background(), UserMessage{Content: "go"})
	require.NoError(t, err, "an optional tool failure degrades, it does not fail the message")
	assert.Equal(t, "sorry, that tool is down", resp.Text)

	results := eng.request(t, 1).Messages[2].ToolResults
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "unavailable")
}

func TestProcessMessage_RequiredToolFailureIsFatal(t *testing.T) {
	eng := &fakeEngine{completions: []*Completion{
		{ToolCalls: []ToolRequest{{ID: "t1", Name: "no_such_tool", Required: true}}},
	}}
	agent := newTestAgent(t, eng)

	_, err := agent.ProcessMessage(context.Background(), UserMessage{Content: "go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_tool")
}

func TestProcessMessage_MaxToolRounds(t *testing.T) {
	eng := &fakeEngine{}
	// Always ask for another round.
	for i := 0; i < 10; i++ {
		eng.completions = append(eng.completions,
			&Completion{ToolCalls: []ToolRequest{{ID: fmt.Sprintf("t%d", i), Name: "echo", Arguments: json.RawMessage(`{"value":"x"}`)}}})
	}
	agent := newTestAgent(t, eng, WithMaxToolRounds(2))
	RegisterTool(agent.Tools(), echoTool{})

	_, err := agent.ProcessMessage(context.Background(), UserMessage{Content: "loop"})
	require.ErrorIs(t, err, ErrMaxToolRounds)
}

func TestProcessMessage_EngineErrorPropagates(t *testing.T) {
	eng := &fakeEngine{err: fmt.Errorf("model overloaded")}
	agent := newTestAgent(t, eng)

	_, err := agent.ProcessMessage(context.Background(), UserMessage{Content: "hi"})
	require.ErrorContains(t, err, "model overloaded")
}

func TestProcessMessage_AttachmentsInlined(t *testing.T) {
	eng := &fakeEngine{}
	agent := newTestAgent(t, eng)

	data := []byte("report contents")
	_, err := agent.ProcessMessage(context.Background(), UserMessage{
		Content: "summarize this",
		Attachments: []overflow.Attachment{
			{Name: "report.txt", Data: data, Type: "text/plain", Size: int64(len(data))},
		},
	})
	require.NoError(t, err)

	sent := eng.request(t, 0).Messages[0].Text
	assert.Contains(t, sent, "report.txt")
	assert.Contains(t, sent, base64.StdEncoding.EncodeToString(data))
}

func TestProcessMessage_ReturnBytesMode(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("unsigned-tx"))
	summary := fmt.Sprintf(
		`{"transactionBytes":%q,"transfers":[{"account":"0.0.1001","amountTinybars":-100000000},{"account":"0.0.2002","amountTinybars":100000000}]}`,
		payload)

	eng := &fakeEngine{completions: []*Completion{
		{Text: "Here is the unsigned transfer:\n" + summary},
	}}
	agent := newTestAgent(t, eng, WithMode(ModeReturnBytes))

	resp, err := agent.ProcessMessage(context.Background(), UserMessage{Content: "send 1 HBAR"})
	require.NoError(t, err)
	assert.Equal(t, payload, resp.TransactionBytes)
	require.NotNil(t, resp.Summary)
	require.Len(t, resp.Summary.Transfers, 2)
	assert.Equal(t, "1", resp.Summary.Transfers[1].AmountHBAR().String())

	assert.Contains(t, eng.request(t, 0).System, "transactionBytes",
		"returnBytes mode adds the signing directive to the system prompt")
}

func TestSwitchMode_AffectsSubsequentMessagesOnly(t *testing.T) {
	eng := &fakeEngine{completions: []*Completion{{Text: "a"}, {Text: "b"}}}
	agent := newTestAgent(t, eng)
	require.Equal(t, ModeAutonomous, agent.Mode())

	_, err := agent.ProcessMessage(context.Background(), UserMessage{Content: "one"})
	require.NoError(t, err)
	assert.NotContains(t, eng.request(t, 0).System, "transactionBytes")

	require.NoError(t, agent.SwitchMode(ModeReturnBytes))
	require.Equal(t, ModeReturnBytes, agent.Mode())

	_, err = agent.ProcessMessage(context.Background(), UserMessage{Content: "two"})
	require.NoError(t, err)
	assert.Contains(t, eng.request(t, 1).System, "transactionBytes")
}

func TestSwitchMode_RejectsUnknownMode(t *testing.T) {
	agent := New(WithEngine(&fakeEngine{}))
	require.ErrorIs(t, agent.SwitchMode("sovereign"), ErrInvalidMode)
}

func TestExecuteToolCall_Local(t *testing.T) {
	agent := newTestAgent(t, &fakeEngine{})
	RegisterTool(agent.Tools(), echoTool{})

	out, err := agent.ExecuteToolCall(context.Background(), "echo", json.RawMessage(`{"value":"direct"}`))
	require.NoError(t, err)
	assert.Equal(t, "echo: direct", out)

	_, err = agent.ExecuteToolCall(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestExecuteToolCall_ToolErrorSurfacesAsError(t *testing.T) {
	agent := newTestAgent(t, &fakeEngine{})
	agent.Tools().RegisterRaw("fail", "always fails", json.RawMessage(`{"type":"object"}`),
		func(context.Context, json.RawMessage) (*ToolResult, error) {
			return ErrorResult("broken"), nil
		})

	_, err := agent.ExecuteToolCall(context.Background(), "fail", nil)
	require.ErrorContains(t, err, "broken")
}

func TestDisconnect_Idempotent(t *testing.T) {
	agent := newTestAgent(t, &fakeEngine{})
	require.NoError(t, agent.Disconnect())
	require.NoError(t, agent.Disconnect())
}

func TestCleanup_ReleasesEngine(t *testing.T) {
	eng := &fakeEngine{}
	agent := New(WithEngine(eng))
	require.NoError(t, agent.Initialize(context.Background()))

	require.NoError(t, agent.Cleanup())
	require.NoError(t, agent.Cleanup())
	assert.Equal(t, 1, eng.closeCalls, "the engine closes exactly once")

	_, err := agent.ProcessMessage(context.Background(), UserMessage{Content: "hi"})
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitialize_AfterCleanupFails(t *testing.T) {
	eng := &fakeEngine{}
	agent := New(WithEngine(eng))
	require.NoError(t, agent.Initialize(context.Background()))
	require.NoError(t, agent.Cleanup())

	require.ErrorIs(t, agent.Initialize(context.Background()), ErrInitialization)
	assert.Equal(t, 1, eng.closeCalls, "a rejected reinitialization does not touch the engine")

	_, err := agent.ProcessMessage(context.Background(), UserMessage{Content: "hi"})
	require.ErrorIs(t, err, ErrNotInitialized)
}

// mcpServerScript answers the connection handshake and one tool call, so the
// bridged path can be exercised end to end over a real stdio transport.
const mcpServerScript = `read line
echo '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05"}}'
read line
read line
echo '{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"ping","description":"reports liveness","inputSchema":{"type":"object"}}]}}'
read line
echo '{"jsonrpc":"2.0","id":3,"result":{"content":[{"type":"text","text":"pong"}]}}'
cat >/dev/null`

func TestBridgedTools_EndToEnd(t *testing.T) {
	agent := newTestAgent(t, &fakeEngine{}, WithServers(mcp.ServerConfig{
		Name:        "util",
		Transport:   mcp.TransportStdio,
		Command:     "sh",
		Args:        []string{"-c", mcpServerScript},
		Enabled:     true,
		AutoConnect: true,
	}))
	RegisterTool(agent.Tools(), echoTool{})

	tools := agent.GetAvailableTools()
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"echo", "mcp__util__ping"}, names)

	out, err := agent.ExecuteToolCall(context.Background(), "mcp__util__ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}
