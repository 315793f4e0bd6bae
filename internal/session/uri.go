package session

import (
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"bridgewallet.io/bridge-wallet/pkg/envelope"
	"bridgewallet.io/bridge-wallet/pkg/errors"
)

const (
	schemeWalletConnect = "wc"
	schemeExtension     = "CWE"
)

// ParseURI decodes a pairing URI of the form
//
//	wc:<topic>@<version>?bridge=<url-encoded url>&key=<64 hex chars>[&role=extension]
//
// The CWE: variant is accepted identically except for source labelling. Inputs
// without a recognized scheme prefix may arrive percent-encoded once (QR
// scanners and deep links do this); they are unescaped before parsing.
func ParseURI(raw string) (*Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.NewKind(errors.KindInvalidURI, "empty pairing uri")
	}
	if !hasKnownScheme(raw) && strings.Contains(raw, "%") {
		decoded, err := url.QueryUnescape(raw)
		if err != nil {
			return nil, errors.WithKind(errors.KindInvalidURI, errors.Wrap(err, "unescape pairing uri"))
		}
		raw = decoded
	}
	scheme, rest, found := cutScheme(raw)
	if !found {
		return nil, errors.NewKind(errors.KindInvalidURI, "pairing uri has no scheme")
	}
	// net/url only exposes userinfo and host on hierarchical uris, so
	// wc:topic@version becomes wc://topic@version before parsing.
	u, err := url.Parse(scheme + "://" + rest)
	if err != nil {
		return nil, errors.WithKind(errors.KindInvalidURI, errors.Wrap(err, "parse pairing uri"))
	}
	topic := u.User.Username()
	version := u.Host
	if topic == "" || version == "" {
		return nil, errors.NewKind(errors.KindInvalidURI, "pairing uri missing topic or version")
	}
	query := u.Query()
	bridge := query.Get("bridge")
	if err := validateBridge(bridge); err != nil {
		return nil, err
	}
	key, err := decodeKey(query.Get("key"))
	if err != nil {
		return nil, err
	}
	numerical, err := strconv.ParseFloat(version, 64)
	if err != nil {
		numerical = 1.0
	}
	return &Session{
		Topic:            topic,
		Version:          version,
		Bridge:           bridge,
		Key:              key,
		NumericalVersion: numerical,
		Source:           sourceOf(scheme),
		IsExtension:      query.Get("role") == "extension",
	}, nil
}

func hasKnownScheme(raw string) bool {
	return strings.HasPrefix(raw, schemeWalletConnect+":") ||
		strings.HasPrefix(raw, schemeExtension+":")
}

func cutScheme(raw string) (scheme, rest string, found bool) {
	idx := strings.Index(raw, ":")
	if idx <= 0 || idx == len(raw)-1 {
		return "", "", false
	}
	rest = raw[idx+1:]
	// Tolerate uris already written with the hierarchical double slash.
	rest = strings.TrimPrefix(rest, "//")
	return raw[:idx], rest, true
}

func sourceOf(scheme string) Source {
	switch scheme {
	case schemeWalletConnect:
		return SourceWalletConnect
	case schemeExtension:
		return SourceExtension
	default:
		return SourceUnknown
	}
}

func validateBridge(bridge string) error {
	if bridge == "" {
		return errors.NewKind(errors.KindInvalidURI, "pairing uri missing bridge")
	}
	u, err := url.Parse(bridge)
	if err != nil {
		return errors.WithKind(errors.KindInvalidURI, errors.Wrap(err, "parse bridge url"))
	}
	if !u.IsAbs() || u.Host == "" {
		return errors.NewKind(errors.KindInvalidURI, "bridge url is not absolute")
	}
	switch u.Scheme {
	case "https", "wss":
		return nil
	default:
		return errors.KindErrorf(errors.KindInvalidURI, "unsupported bridge scheme %q", u.Scheme)
	}
}

func decodeKey(keyHex string) ([]byte, error) {
	if keyHex == "" {
		return nil, errors.NewKind(errors.KindInvalidURI, "pairing uri missing key")
	}
	if strings.ToLower(keyHex) != keyHex {
		return nil, errors.NewKind(errors.KindInvalidURI, "pairing key must be lowercase hex")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, errors.WithKind(errors.KindInvalidURI, errors.Wrap(err, "decode pairing key hex"))
	}
	if len(key) != envelope.KeySize {
		return nil, errors.KindErrorf(errors.KindInvalidURI, "pairing key must be %v bytes, got %v", envelope.KeySize, len(key))
	}
	return key, nil
}
