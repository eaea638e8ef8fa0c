// Package carrier adapts the transports a farcall connection can ride —
// TCP, a Unix domain socket, a local-socket WebSocket, and a WebRTC
// DataChannel — to the single io.ReadWriteCloser surface frame.Transport
// expects, so the framing/codec/handshake layer never needs to know which
// one it is running over (SPEC_FULL.md §3, carriers).
package carrier

import (
	"context"
	"net"
)

// Dial opens a TCP or Unix domain socket connection depending on network
// ("tcp", "tcp4", "tcp6", "unix"), grounded on the plain net.Dial
// cmd/wt uses to reach its relay.
func Dial(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

// Listen starts accepting TCP or Unix domain socket connections.
func Listen(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}
