package main

import (
	"context"

	"github.com/farcall-dev/farcall/internal/client"
	"github.com/farcall-dev/farcall/internal/frame"
	"github.com/farcall-dev/farcall/internal/mailbox"
)

func wireForm() mailbox.WireForm {
	if wireFlag == "json" {
		return mailbox.WireJSON
	}
	return mailbox.WireBinary
}

func dial(ctx context.Context) (*mailbox.Channel, *mailbox.PostOffice, error) {
	return client.Dial(ctx, client.Options{
		Network:     networkFlag,
		Address:     addressFlag,
		Form:        wireForm(),
		Compression: frame.CompressionAlgo(compressionFlag),
		Encryption:  frame.EncryptionAlgo(encryptionFlag),
	})
}
