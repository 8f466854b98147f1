// Package services provides gateway codec, wire protocol, token and client services
package services

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

var (
	// ErrKeyUnavailable indicates the gateway key file is missing or too short
	ErrKeyUnavailable = errors.New("gateway key material unavailable")
	// ErrNonASCIIPlaintext indicates the plaintext contains bytes outside ASCII
	ErrNonASCIIPlaintext = errors.New("plaintext must be ASCII")
	// ErrInvalidCiphertext indicates the ciphertext is malformed or mispadded
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

const gatewayKeySize = 16

// IsKeyUnavailable reports whether err stems from missing or short key material
func IsKeyUnavailable(err error) bool {
	return errors.Is(err, ErrKeyUnavailable)
}

// KeyProvider supplies the symmetric key material shared with the treasury gateway
type KeyProvider interface {
	// Key returns the 16-byte key. Safe for concurrent use.
	Key() ([]byte, error)
	// Invalidate drops the cached key so the next call re-reads the key file.
	Invalidate()
}

// FileKeyProvider loads the key from the first 16 bytes of a key file and
// caches it after the first successful load. A failed load is not cached, so
// callers can retry after the file is provisioned.
type FileKeyProvider struct {
	path string

	mu  sync.Mutex
	key []byte
}

// NewFileKeyProvider creates a key provider reading from the given path
func NewFileKeyProvider(path string) *FileKeyProvider {
	return &FileKeyProvider{path: path}
}

// Key returns the cached key, loading it from disk on first use
func (p *FileKeyProvider) Key() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != nil {
		return p.key, nil
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	if len(raw) < gatewayKeySize {
		return nil, fmt.Errorf("%w: key file %s holds %d bytes, need %d", ErrKeyUnavailable, p.path, len(raw), gatewayKeySize)
	}

	key := make([]byte, gatewayKeySize)
	copy(key, raw[:gatewayKeySize])
	p.key = key
	return p.key, nil
}

// Invalidate clears the cached key
func (p *FileKeyProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key = nil
}

// StaticKeyProvider returns a fixed key. Used in tests and local setups.
type StaticKeyProvider struct {
	key []byte
}

// NewStaticKeyProvider creates a provider around the given key material
func NewStaticKeyProvider(key []byte) (*StaticKeyProvider, error) {
	if len(key) < gatewayKeySize {
		return nil, fmt.Errorf("%w: key holds %d bytes, need %d", ErrKeyUnavailable, len(key), gatewayKeySize)
	}
	k := make([]byte, gatewayKeySize)
	copy(k, key[:gatewayKeySize])
	return &StaticKeyProvider{key: k}, nil
}

func (p *StaticKeyProvider) Key() ([]byte, error) { return p.key, nil }
func (p *StaticKeyProvider) Invalidate()          {}

// TreasuryCodec encrypts, decrypts and checksums gateway payloads.
//
// The counterpart system is a fixed closed implementation: AES-128-CBC with
// the IV set equal to the key, PKCS7 padding, single-byte character encoding.
// The IV==key arrangement is a compatibility requirement and must not be
// replaced with a random IV.
type TreasuryCodec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
	Checksum(plaintext string) string
	VerifyChecksum(plaintext, candidate string) bool
}

type treasuryCodec struct {
	keys KeyProvider
}

// NewTreasuryCodec creates a codec backed by the given key provider
func NewTreasuryCodec(keys KeyProvider) TreasuryCodec {
	return &treasuryCodec{keys: keys}
}

// Encrypt encrypts an ASCII plaintext and returns base64 ciphertext
func (c *treasuryCodec) Encrypt(plaintext string) (string, error) {
	if !isASCII(plaintext) {
		return "", ErrNonASCIIPlaintext
	}

	key, err := c.keys.Key()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, key).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt, returning the ASCII plaintext
func (c *treasuryCodec) Decrypt(encoded string) (string, error) {
	key, err := c.keys.Key()
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: length %d not a block multiple", ErrInvalidCiphertext, len(raw))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, key).CryptBlocks(out, raw)

	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// Checksum returns the lowercase hex digest of the plaintext
func (c *treasuryCodec) Checksum(plaintext string) string {
	sum := md5.Sum([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares a candidate digest case-insensitively. The
// counterpart may render hex in uppercase.
func (c *treasuryCodec) VerifyChecksum(plaintext, candidate string) bool {
	return strings.EqualFold(c.Checksum(plaintext), candidate)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return false
		}
	}
	return true
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padded length %d", ErrInvalidCiphertext, len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding byte %d", ErrInvalidCiphertext, n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: inconsistent padding", ErrInvalidCiphertext)
		}
	}
	return data[:len(data)-n], nil
}
