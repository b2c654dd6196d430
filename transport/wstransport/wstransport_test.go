package wstransport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"e2ee/addr"
	"e2ee/wire"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard) // silence during tests
	hub := NewHub(logger)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleConnections))
	t.Cleanup(server.Close)
	return hub, server
}

func dialWS(t *testing.T, serverURL string, address addr.Address) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.RawQuery = "user_id=" + address.UserID + "&device_id=" + address.DeviceID + "&domain=" + address.Domain
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	return conn
}

func TestSendToLiveConnectionDeliversOverWebsocket(t *testing.T) {
	hub, server := newTestHub(t)
	alice := addr.New("alice", "device-1", "example.org")

	conn := dialWS(t, server.URL, alice)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond) // let HandleConnections register the connection

	envelope := wire.NewInviteEnvelope(wire.InviteMsg{SessionID: "s1"})
	require.NoError(t, hub.Send(context.Background(), alice, envelope))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var got wire.Envelope
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "s1", got.Invite.SessionID)
}

func TestSendQueuesForOfflineDeviceThenFlushesOnConnect(t *testing.T) {
	hub, server := newTestHub(t)
	bob := addr.New("bob", "device-1", "example.org")

	require.NoError(t, hub.Send(context.Background(), bob, wire.NewInviteEnvelope(wire.InviteMsg{SessionID: "queued-1"})))

	conn := dialWS(t, server.URL, bob)
	defer conn.Close()

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var got wire.Envelope
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "queued-1", got.Invite.SessionID)
}

func TestDeliverLocallyRoutesInboundEnvelopesToSubscriber(t *testing.T) {
	hub, server := newTestHub(t)
	carol := addr.New("carol", "device-1", "example.org")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := hub.Subscribe(ctx, carol)
	require.NoError(t, err)

	conn := dialWS(t, server.URL, carol)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	envelope := wire.NewInviteEnvelope(wire.InviteMsg{SessionID: "inbound-1"})
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))

	select {
	case got := <-ch:
		assert.Equal(t, "inbound-1", got.Invite.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound envelope")
	}
}
