package carrier

import (
	"context"
	"net"
	"net/http"

	"github.com/coder/websocket"
)

// DialWS opens a local-socket WebSocket carrier, the way the
// browser-facing relay transport in internal/relay/pty_relay.go does
// (_examples/ehrlich-b-wingthing/internal/relay/pty_relay.go), and adapts
// it to net.Conn via the library's own NetConn bridge so frame.Transport
// can treat it like any other stream.
func DialWS(ctx context.Context, url string) (net.Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return websocket.NetConn(context.Background(), c, websocket.MessageBinary), nil
}

// AcceptWS upgrades an incoming HTTP request to a WebSocket carrier.
func AcceptWS(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, err
	}
	return websocket.NetConn(context.Background(), c, websocket.MessageBinary), nil
}
