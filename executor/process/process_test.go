package process_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modnet-labs/registry-scheduler/executor/process"
	"github.com/modnet-labs/registry-scheduler/policy"
)

func TestInvokeEchoSubprocess(t *testing.T) {
	cfg := process.Config{Command: "cat"}
	p := policy.Defaults()
	e := process.New(cfg, p)

	result, err := e.Invoke(context.Background(), []byte(`{"text":"hello via process"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"arguments":{"text":"hello via process"}}`, string(result.Value))
}

func TestInvokeTimeout(t *testing.T) {
	cfg := process.Config{Command: "sleep", Args: []string{"100"}}
	p := policy.Policy{TimeoutMs: 10, MaxOutputBytes: policy.DefaultMaxOutputBytes}
	e := process.New(cfg, p)

	_, err := e.Invoke(context.Background(), []byte(`{}`))
	require.Error(t, err)
}

func TestInvokeNonJSONOutputFails(t *testing.T) {
	cfg := process.Config{Command: "sh", Args: []string{"-c", "echo not-json"}}
	p := policy.Defaults()
	e := process.New(cfg, p)

	_, err := e.Invoke(context.Background(), []byte(`{}`))
	require.Error(t, err)
}

func TestInvokeEmptyOutputFails(t *testing.T) {
	cfg := process.Config{Command: "true"}
	p := policy.Defaults()
	e := process.New(cfg, p)

	_, err := e.Invoke(context.Background(), []byte(`{}`))
	require.Error(t, err)
}

func TestInvokeOutputExactlyAtCapAccepted(t *testing.T) {
	cfg := process.Config{Command: "cat"}
	p := policy.Policy{TimeoutMs: 1000, MaxOutputBytes: int64(len(`{"arguments":{"a":1}}`))}
	e := process.New(cfg, p)

	_, err := e.Invoke(context.Background(), []byte(`{"a":1}`))
	assert.NoError(t, err)
}

func TestInvokeOutputOneByteOverCapRejected(t *testing.T) {
	cfg := process.Config{Command: "cat"}
	p := policy.Policy{TimeoutMs: 1000, MaxOutputBytes: int64(len(`{"arguments":{"a":1}}`)) - 1}
	e := process.New(cfg, p)

	_, err := e.Invoke(context.Background(), []byte(`{"a":1}`))
	assert.Error(t, err)
}
