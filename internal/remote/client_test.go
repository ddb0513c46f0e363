package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

func testConfig() Config {
	return Config{
		URL:          "redis://127.0.0.1:1",
		DialTimeout:  100 * time.Millisecond,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
		PingInterval: time.Hour,
		PingTimeout:  100 * time.Millisecond,
	}
}

// TestNew_ModeSelection tests single-node vs cluster construction
func TestNew_ModeSelection(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantErr   bool
		clustered bool
	}{
		{
			name:      "url single node",
			config:    Config{URL: "redis://localhost:6379"},
			clustered: false,
		},
		{
			name:      "one cluster node stays single",
			config:    Config{ClusterNodes: []string{"localhost:6379"}},
			clustered: false,
		},
		{
			name:      "multiple nodes select cluster mode",
			config:    Config{ClusterNodes: []string{"a:6379", "b:6379", "c:6379"}},
			clustered: true,
		},
		{
			name:    "no address",
			config:  Config{},
			wantErr: true,
		},
		{
			name:    "malformed url",
			config:  Config{URL: "://nope"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidConfig))
				return
			}
			require.NoError(t, err)
			defer func() { _ = client.Close() }()
			assert.Equal(t, tt.clustered, client.Clustered())
			assert.Equal(t, StateConnecting, client.State())
		})
	}
}

// TestState_String tests the state name mapping
func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "unknown", State(99).String())
}

// TestClient_SubscribeAndMarkError tests state change notification
func TestClient_SubscribeAndMarkError(t *testing.T) {
	client, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	var seen []State
	client.Subscribe(func(s State) {
		seen = append(seen, s)
	})

	client.MarkError(assert.AnError)
	assert.Equal(t, StateError, client.State())
	assert.Equal(t, assert.AnError, client.LastError())
	require.Len(t, seen, 1)
	assert.Equal(t, StateError, seen[0])

	// Same-state transition is suppressed
	client.MarkError(assert.AnError)
	assert.Len(t, seen, 1)

	// Nil error is ignored
	client.MarkError(nil)
	assert.Len(t, seen, 1)
}

// TestClient_ConnectUnreachable tests that a failed initial ping leaves the
// client in the error state rather than ready
func TestClient_ConnectUnreachable(t *testing.T) {
	client, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	err = client.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConnectionFailed))
	assert.Equal(t, StateError, client.State())
	assert.False(t, client.Ready())
}

// TestClient_Close tests terminal state behavior
func TestClient_Close(t *testing.T) {
	client, err := New(testConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.Equal(t, StateClosed, client.State())

	// Closed is terminal: later errors do not resurrect the state machine
	client.MarkError(assert.AnError)
	assert.Equal(t, StateClosed, client.State())

	// Double close is a no-op
	assert.NoError(t, client.Close())
}

// TestParseInfo tests INFO response parsing
func TestParseInfo(t *testing.T) {
	info := "# Server\r\nredis_version:7.2.4\r\n# Memory\r\nused_memory:1048576\r\n" +
		"# Stats\r\nkeyspace_hits:500\r\nkeyspace_misses:50\r\nmalformed line\r\n"

	var stats types.RemoteStats
	parseInfo(info, &stats)

	assert.Equal(t, "7.2.4", stats.Version)
	assert.Equal(t, int64(1048576), stats.UsedMemory)
	assert.Equal(t, int64(500), stats.KeyspaceHits)
	assert.Equal(t, int64(50), stats.KeyspaceMisses)
}

// TestClient_FlushSetExEmpty tests that an empty batch is a no-op
func TestClient_FlushSetExEmpty(t *testing.T) {
	client, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	// No network round trip happens for an empty batch, so this succeeds
	// even against an unreachable address.
	assert.NoError(t, client.FlushSetEx(context.Background(), nil))
}
