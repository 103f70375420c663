// ABOUTME: Tests for WebSocket client implementation
// ABOUTME: Tests handshake and routing against a live hub
package client

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/Resonate-Protocol/admsync/pkg/visualize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{ServerAddr: "localhost:8928", Name: "Test Viewer"})
	assert.Equal(t, "/adm", c.config.Path)
	assert.False(t, c.IsConnected())
	assert.Error(t, c.SendOffsets(visualize.OffsetsCommand{}))
}

func TestClientReceivesFeed(t *testing.T) {
	settings := adm.NewSettings(adm.DefaultConfig())
	hub := visualize.NewHub(visualize.Config{Name: "studio", Settings: settings})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	c := NewClient(Config{ServerAddr: strings.TrimPrefix(srv.URL, "http://"), ViewerID: "v1", Name: "Test Viewer"})
	require.NoError(t, c.Connect())
	defer c.Close()

	hello := <-c.Hello
	assert.Equal(t, "studio", hello.Name)
	require.Eventually(t, func() bool { return hub.ViewerCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.OnMetadataUpdate(adm.MetadataUpdate{ID: 3, RunState: adm.RunStateReachedEnd})
	hub.OnTickEnd(1.5)

	select {
	case frame := <-c.Frames:
		assert.Equal(t, 1.5, frame.Time)
		require.Len(t, frame.Items, 1)
		assert.Equal(t, "REACHED_END", frame.Items[0].State)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	require.NoError(t, c.SendOffsets(visualize.OffsetsCommand{Target: "directspeakers", Elevation: 10}))
	require.Eventually(t, func() bool { return settings.Revision() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 10.0, settings.Snapshot().DirectSpeakers.Elevation)

	require.NoError(t, c.SendOffsets(visualize.OffsetsCommand{Target: "nowhere"}))
	select {
	case serverErr := <-c.Errors:
		assert.Equal(t, "rejected", serverErr.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("no error received")
	}
}

func TestClientConnectFails(t *testing.T) {
	c := NewClient(Config{ServerAddr: "127.0.0.1:1"})
	assert.Error(t, c.Connect())
}
