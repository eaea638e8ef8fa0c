package frame

import (
	"bytes"
	"crypto/rand"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func TestChainCodecOrder(t *testing.T) {
	key := make([]byte, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		t.Fatal(err)
	}
	chain := ChainCodec{Codecs: []Codec{
		CompressionCodec{Algo: CompressionZlib, Level: 6},
		EncryptionCodec{AEAD: aead},
	}}

	plain := bytes.Repeat([]byte("payload"), 100)
	encoded, err := chain.Encode(plain)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := chain.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, plain) {
		t.Errorf("round-trip mismatch")
	}
}

func TestEncryptionCodecTamperDetected(t *testing.T) {
	key := make([]byte, chacha20poly1305.KeySize)
	rand.Read(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		t.Fatal(err)
	}
	c := EncryptionCodec{AEAD: aead}
	encoded, err := c.Encode([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	encoded[len(encoded)-1] ^= 0xFF
	if _, err := c.Decode(encoded); err == nil {
		t.Fatal("expected tamper to be detected")
	}
}

func TestCompressionCodecsRoundTrip(t *testing.T) {
	plain := []byte("the quick brown fox jumps over the lazy dog")
	for _, algo := range []CompressionAlgo{CompressionDeflate, CompressionGzip, CompressionZlib} {
		c := CompressionCodec{Algo: algo, Level: 6}
		encoded, err := c.Encode(plain)
		if err != nil {
			t.Fatalf("%s encode: %v", algo, err)
		}
		decoded, err := c.Decode(encoded)
		if err != nil {
			t.Fatalf("%s decode: %v", algo, err)
		}
		if !bytes.Equal(decoded, plain) {
			t.Errorf("%s round-trip mismatch", algo)
		}
	}
}
