package session

import (
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"bridgewallet.io/bridge-wallet/pkg/envelope"
	"bridgewallet.io/bridge-wallet/pkg/errors"
)

// NewPairing creates a fresh pairing descriptor for the dApp role: a random
// topic and a random 32-byte key, to be shared with the wallet via QR code.
func NewPairing(bridge string) (*Session, error) {
	if err := validateBridge(bridge); err != nil {
		return nil, err
	}
	key, err := envelope.GenerateRandomBytes(envelope.KeySize)
	if err != nil {
		return nil, errors.WrapAndReport(err, "generate pairing key")
	}
	return &Session{
		Topic:            uuid.NewString(),
		Version:          "1",
		Bridge:           bridge,
		Key:              key,
		NumericalVersion: 1.0,
		Source:           SourceWalletConnect,
	}, nil
}

// ComposeURI renders the canonical pairing uri for this descriptor.
func (s *Session) ComposeURI() string {
	scheme := schemeWalletConnect
	if s.Source == SourceExtension {
		scheme = schemeExtension
	}
	uri := fmt.Sprintf("%s:%s@%s?bridge=%s&key=%s",
		scheme, s.Topic, s.Version, url.QueryEscape(s.Bridge), hex.EncodeToString(s.Key))
	if s.IsExtension {
		uri += "&role=extension"
	}
	return uri
}

// QRCodePNG renders the pairing uri as a PNG qr code of the given pixel size.
func (s *Session) QRCodePNG(size int) ([]byte, error) {
	png, err := qrcode.Encode(s.ComposeURI(), qrcode.Medium, size)
	if err != nil {
		return nil, errors.WrapAndReport(err, "encode pairing qr code")
	}
	return png, nil
}
