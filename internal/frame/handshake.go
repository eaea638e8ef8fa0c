package frame

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/farcall-dev/farcall/internal/auth"
)

// optionsFrame is sent by the server first: what it is willing to negotiate.
type optionsFrame struct {
	CompressionAlgos []CompressionAlgo `json:"compression_algos"`
	EncryptionAlgos  []EncryptionAlgo  `json:"encryption_algos"`
	PublicKey        string            `json:"public_key"`
}

// choiceFrame is the client's reply picking one option from each list (or
// none, to fall back to PlainCodec for that concern).
type choiceFrame struct {
	Compression CompressionAlgo `json:"compression,omitempty"`
	Level       int             `json:"level,omitempty"`
	Encryption  EncryptionAlgo  `json:"encryption,omitempty"`
	PublicKey   string          `json:"public_key,omitempty"`
}

// keyExchangeFrame carries the server's contribution to the HKDF salt,
// sent after the client has committed to an encryption choice.
type keyExchangeFrame struct {
	Salt string `json:"salt"`
}

func writeJSONFrame(t *Transport, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeRaw(t.conn, raw)
}

func readJSONFrame(t *Transport, v any) error {
	raw, err := readRaw(t.conn)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// ServerPreferences lists what a listening transport is willing to offer
// during the handshake of spec §4.1.4.
type ServerPreferences struct {
	Compression []CompressionAlgo
	Encryption  []EncryptionAlgo
	PrivateKey  *ecdh.PrivateKey
}

// HandshakeServer runs the server side of the in-band negotiation. It must
// be called before any ReadFrame/TryReadFrame/WriteFrame so the pump has not
// yet started consuming bytes meant for the handshake.
func (t *Transport) HandshakeServer(prefs ServerPreferences) error {
	pub := base64.StdEncoding.EncodeToString(prefs.PrivateKey.PublicKey().Bytes())
	if err := writeJSONFrame(t, optionsFrame{
		CompressionAlgos: prefs.Compression,
		EncryptionAlgos:  prefs.Encryption,
		PublicKey:        pub,
	}); err != nil {
		return fmt.Errorf("frame: handshake: send options: %w", err)
	}

	var choice choiceFrame
	if err := readJSONFrame(t, &choice); err != nil {
		return fmt.Errorf("frame: handshake: read choice: %w", err)
	}

	var codecs []Codec
	if choice.Compression != "" {
		codecs = append(codecs, CompressionCodec{Algo: choice.Compression, Level: choice.Level})
	}
	if choice.Encryption != "" {
		salt := make([]byte, 32)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("frame: handshake: generate salt: %w", err)
		}
		if err := writeJSONFrame(t, keyExchangeFrame{Salt: base64.StdEncoding.EncodeToString(salt)}); err != nil {
			return fmt.Errorf("frame: handshake: send key exchange: %w", err)
		}
		aead, err := auth.DeriveSharedKey(prefs.PrivateKey, choice.PublicKey, salt)
		if err != nil {
			return fmt.Errorf("frame: handshake: derive key: %w", err)
		}
		codecs = append(codecs, EncryptionCodec{AEAD: aead})
	}

	t.SetCodec(ChainCodec{Codecs: codecs})
	return nil
}

// ClientPreferences names the one compression algorithm (with level) and
// the one encryption algorithm a connecting transport would like to use.
// Each is chosen only if the server's offer contains it; otherwise that
// layer is left off.
type ClientPreferences struct {
	Compression CompressionAlgo
	Level       int
	Encryption  EncryptionAlgo
	PrivateKey  *ecdh.PrivateKey
}

func contains[T comparable](list []T, want T) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

// HandshakeClient runs the client side of the in-band negotiation.
func (t *Transport) HandshakeClient(prefs ClientPreferences) error {
	var opts optionsFrame
	if err := readJSONFrame(t, &opts); err != nil {
		return fmt.Errorf("frame: handshake: read options: %w", err)
	}

	choice := choiceFrame{}
	if prefs.Compression != "" && contains(opts.CompressionAlgos, prefs.Compression) {
		choice.Compression = prefs.Compression
		choice.Level = prefs.Level
	}
	var codecs []Codec
	if choice.Compression != "" {
		codecs = append(codecs, CompressionCodec{Algo: choice.Compression, Level: choice.Level})
	}

	wantEncryption := prefs.Encryption != "" && contains(opts.EncryptionAlgos, prefs.Encryption) && prefs.PrivateKey != nil
	if wantEncryption {
		choice.Encryption = prefs.Encryption
		choice.PublicKey = base64.StdEncoding.EncodeToString(prefs.PrivateKey.PublicKey().Bytes())
	}

	if err := writeJSONFrame(t, choice); err != nil {
		return fmt.Errorf("frame: handshake: send choice: %w", err)
	}

	if wantEncryption {
		var kex keyExchangeFrame
		if err := readJSONFrame(t, &kex); err != nil {
			return fmt.Errorf("frame: handshake: read key exchange: %w", err)
		}
		salt, err := base64.StdEncoding.DecodeString(kex.Salt)
		if err != nil {
			return fmt.Errorf("frame: handshake: decode salt: %w", err)
		}
		aead, err := auth.DeriveSharedKey(prefs.PrivateKey, opts.PublicKey, salt)
		if err != nil {
			return fmt.Errorf("frame: handshake: derive key: %w", err)
		}
		codecs = append(codecs, EncryptionCodec{AEAD: aead})
	}

	t.SetCodec(ChainCodec{Codecs: codecs})
	return nil
}
