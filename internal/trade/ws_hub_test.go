package trade_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/hyperdrive-engine/internal/trade"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) trade.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg trade.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWSHub_PoolFilter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := trade.NewWSHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	a := dial(t, srv, "?pool_id=a")
	b := dial(t, srv, "?pool_id=b")
	all := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 3 }, 5*time.Second, 10*time.Millisecond)

	hub.Broadcast(trade.WSMessage{Type: trade.MsgPoolAdvanced, PoolID: "a", Clock: 1})
	hub.Broadcast(trade.WSMessage{Type: trade.MsgPoolAdvanced, PoolID: "b", Clock: 2})

	assert.Equal(t, int64(1), readMsg(t, a).Clock)
	// b's first message is its own; pool a's was filtered out.
	assert.Equal(t, int64(2), readMsg(t, b).Clock)
	assert.Equal(t, int64(1), readMsg(t, all).Clock)
	assert.Equal(t, int64(2), readMsg(t, all).Clock)
}

func TestWSHub_ServiceBroadcastsTrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := trade.NewWSHub(nil)
	go hub.Run(ctx)

	_, _, router := newTestEnv(t, trade.WithHub(hub))
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	pool := seedPool(t, router)
	created := readMsg(t, conn)
	assert.Equal(t, trade.MsgPoolCreated, created.Type)
	assert.Equal(t, pool.ID, created.PoolID)

	fund(t, router, pool.ID, alice, "100")
	doTrade(t, router, pool.ID, trade.TradeRequest{Wallet: alice, Action: "open_long", Amount: fp("10")})
	executed := readMsg(t, conn)
	assert.Equal(t, trade.MsgTradeExecuted, executed.Type)
	assert.Equal(t, "OPEN_LONG", executed.Action)
	require.NotNil(t, executed.Amount)
	assert.True(t, executed.Amount.Equal(fp("10")))
}

func TestWSHub_StopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := trade.NewWSHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}
