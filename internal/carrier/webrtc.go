package carrier

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"
)

// dcConn wraps a pion DataChannel as an io.ReadWriteCloser so frame.Transport
// can ride a WebRTC carrier exactly like a net.Conn, following
// internal/webrtc/transport.go's SwappableWriter split between a relay
// WriteFn and a DataChannel WriteFn
// (_examples/ehrlich-b-wingthing/internal/webrtc/transport.go) — here there
// is only ever the DataChannel side, so no swapping is needed.
type dcConn struct {
	dc *webrtc.DataChannel

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	notify chan struct{}
}

// newDCConn wires dc's OnMessage callback into a buffer Read can drain. It
// returns immediately and does not wait for dc to reach the open state.
func newDCConn(dc *webrtc.DataChannel) *dcConn {
	c := &dcConn{dc: dc, notify: make(chan struct{}, 1)}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.Lock()
		c.buf.Write(msg.Data)
		c.mu.Unlock()
		select {
		case c.notify <- struct{}{}:
		default:
		}
	})
	dc.OnClose(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		select {
		case c.notify <- struct{}{}:
		default:
		}
	})
	return c
}

func (c *dcConn) Read(p []byte) (int, error) {
	for {
		c.mu.Lock()
		if c.buf.Len() > 0 {
			n, _ := c.buf.Read(p)
			c.mu.Unlock()
			return n, nil
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return 0, io.EOF
		}
		<-c.notify
	}
}

func (c *dcConn) Write(p []byte) (int, error) {
	if err := c.dc.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *dcConn) Close() error {
	return c.dc.Close()
}

// OfferAnswer establishes one WebRTC peer connection from a remote offer SDP
// and returns both the answer SDP (to be sent back out-of-band, e.g. over an
// already-established frame.Transport used as signaling) and an
// io.ReadWriteCloser bound to the first DataChannel the remote side opens,
// grounded on PeerManager.HandleOffer
// (_examples/ehrlich-b-wingthing/internal/webrtc/peer.go), reduced to a
// single anonymous peer since farcall has no relay-injected sender identity.
func OfferAnswer(ctx context.Context, iceServers []webrtc.ICEServer, offerSDP string) (answerSDP string, conn io.ReadWriteCloser, err error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return "", nil, err
	}

	dcCh := make(chan *webrtc.DataChannel, 1)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			select {
			case dcCh <- dc:
			default:
			}
		})
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		pc.Close()
		return "", nil, err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return "", nil, ctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		pc.Close()
		return "", nil, errors.New("carrier: no local description after ICE gathering")
	}

	select {
	case dc := <-dcCh:
		return local.SDP, newDCConn(dc), nil
	case <-ctx.Done():
		pc.Close()
		return "", nil, ctx.Err()
	}
}

// DialDC opens an outbound peer connection, creates a single DataChannel
// labeled "farcall", and returns the offer SDP to send to the remote side
// plus a function that completes the handshake once the remote's answer SDP
// is known.
func DialDC(ctx context.Context, iceServers []webrtc.ICEServer) (offerSDP string, complete func(answerSDP string) (io.ReadWriteCloser, error), err error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return "", nil, err
	}

	dc, err := pc.CreateDataChannel("farcall", nil)
	if err != nil {
		pc.Close()
		return "", nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return "", nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return "", nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return "", nil, ctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		pc.Close()
		return "", nil, errors.New("carrier: no local description after ICE gathering")
	}

	complete = func(answerSDP string) (io.ReadWriteCloser, error) {
		opened := make(chan struct{}, 1)
		dc.OnOpen(func() {
			select {
			case opened <- struct{}{}:
			default:
			}
		})
		if err := pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  answerSDP,
		}); err != nil {
			return nil, err
		}
		select {
		case <-opened:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return newDCConn(dc), nil
	}
	return local.SDP, complete, nil
}
