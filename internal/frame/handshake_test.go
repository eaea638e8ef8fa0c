package frame

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"net"
	"testing"
	"time"
)

func TestHandshakeNegotiatesEncryptionAndCompression(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	serverKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	clientKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	server := NewTransport(a, 16)
	client := NewTransport(b, 16)

	done := make(chan error, 1)
	go func() {
		done <- server.HandshakeServer(ServerPreferences{
			Compression: []CompressionAlgo{CompressionGzip},
			Encryption:  []EncryptionAlgo{EncryptionXChaCha20Poly1305},
			PrivateKey:  serverKey,
		})
	}()

	if err := client.HandshakeClient(ClientPreferences{
		Compression: CompressionGzip,
		Level:       6,
		Encryption:  EncryptionXChaCha20Poly1305,
		PrivateKey:  clientKey,
	}); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server handshake: %v", err)
	}

	payload := []byte("post-handshake data")
	go client.WriteFrame(payload)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := server.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("read after handshake: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestHandshakeSkipsEncryptionWhenUnsupported(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	serverKey, _ := ecdh.X25519().GenerateKey(rand.Reader)

	server := NewTransport(a, 16)
	client := NewTransport(b, 16)

	done := make(chan error, 1)
	go func() {
		done <- server.HandshakeServer(ServerPreferences{
			Encryption: []EncryptionAlgo{EncryptionXChaCha20Poly1305},
			PrivateKey: serverKey,
		})
	}()

	if err := client.HandshakeClient(ClientPreferences{}); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server handshake: %v", err)
	}

	if _, ok := server.currentCodec().(ChainCodec); !ok {
		t.Fatalf("expected ChainCodec (possibly empty), got %T", server.currentCodec())
	}
	if len(server.currentCodec().(ChainCodec).Codecs) != 0 {
		t.Errorf("expected no codecs negotiated")
	}
}
