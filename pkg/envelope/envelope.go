package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"bridgewallet.io/bridge-wallet/pkg/errors"
)

// KeySize is the symmetric key length shared via the pairing URI.
const KeySize = 256 / 8

// Envelope is the encrypted payload carried inside a relay frame. The hmac
// covers ciphertext followed by iv, keyed with the full session key.
type Envelope struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

// FromBytes decodes a JSON envelope.
func FromBytes(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapAndReport(err, "unmarshal encryption envelope")
	}
	return &env, nil
}

// Marshal renders the envelope as the JSON string embedded in pub frames.
func (e *Envelope) Marshal() string {
	s, _ := json.Marshal(e)
	return string(s)
}

// Seal encrypts plaintext with AES-256-CBC under the full 32-byte key, using a
// fresh random iv, and tags ciphertext‖iv with HMAC-SHA256.
func Seal(plaintext, key []byte) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, errors.Errorf("encryption key must be %v bytes, got %v", KeySize, len(key))
	}
	iv, err := GenerateRandomBytes(aes.BlockSize)
	if err != nil {
		return nil, errors.WrapAndReport(err, "generate envelope iv")
	}
	data, err := aesCBCEncrypt(plaintext, key, iv)
	if err != nil {
		return nil, err
	}
	unsigned := append(data, iv...)
	mac := HmacSha256(unsigned, key)
	return &Envelope{
		Data: hex.EncodeToString(data),
		IV:   hex.EncodeToString(iv),
		Hmac: hex.EncodeToString(mac),
	}, nil
}

// Open verifies the envelope hmac in constant time and decrypts the payload.
func Open(env *Envelope, key []byte) ([]byte, error) {
	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return nil, errors.WithKind(errors.KindDecryptionFailed, errors.Wrap(err, "decode iv hex"))
	}
	data, err := hex.DecodeString(env.Data)
	if err != nil {
		return nil, errors.WithKind(errors.KindDecryptionFailed, errors.Wrap(err, "decode cipher hex"))
	}
	mac, err := hex.DecodeString(env.Hmac)
	if err != nil {
		return nil, errors.WithKind(errors.KindHmacMismatch, errors.Wrap(err, "decode hmac hex"))
	}
	unsigned := append(append([]byte{}, data...), iv...)
	expected := HmacSha256(unsigned, key)
	if !hmac.Equal(mac, expected) {
		return nil, errors.NewKind(errors.KindHmacMismatch, "inconsistent envelope hmac")
	}
	return aesCBCDecrypt(data, key, iv)
}

func aesCBCEncrypt(content, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	padded := pkcs7Pad(content, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func aesCBCDecrypt(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.WithKind(errors.KindDecryptionFailed, errors.Wrap(err, "create new cipher block"))
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.NewKind(errors.KindDecryptionFailed, "envelope iv is not one block")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.NewKind(errors.KindDecryptionFailed, "ciphertext is not block aligned")
	}
	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func pkcs7Pad(content []byte, blockSize int) []byte {
	padding := blockSize - len(content)%blockSize
	padText := bytes.Repeat([]byte{byte(padding)}, padding)
	return append(content, padText...)
}

func pkcs7Unpad(content []byte, blockSize int) ([]byte, error) {
	if len(content) == 0 {
		return nil, errors.NewKind(errors.KindDecryptionFailed, "empty plaintext")
	}
	padding := int(content[len(content)-1])
	if padding == 0 || padding > blockSize || padding > len(content) {
		return nil, errors.NewKind(errors.KindDecryptionFailed, "invalid pkcs7 padding")
	}
	for _, b := range content[len(content)-padding:] {
		if int(b) != padding {
			return nil, errors.NewKind(errors.KindDecryptionFailed, "invalid pkcs7 padding")
		}
	}
	return content[:len(content)-padding], nil
}

// GenerateRandomBytes returns n bytes from the CSPRNG.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// HmacSha256 returns the HMAC-SHA256 of data under secret.
func HmacSha256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}
