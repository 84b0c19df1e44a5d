package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/crypto/blake2b"

	"github.com/wxpppp/garage/pkg/model"
)

// SSE-C request and response headers.
const (
	HeaderSSECAlgorithm = "x-amz-server-side-encryption-customer-algorithm"
	HeaderSSECKey       = "x-amz-server-side-encryption-customer-key"
	HeaderSSECKeyMD5    = "x-amz-server-side-encryption-customer-key-md5"

	sseCustomerAlgorithm = "AES256"
)

// Params is the per-object encryption choice, derived from request headers
// before any body byte is read. The zero value is plaintext storage.
type Params struct {
	encrypted bool
	key       [32]byte
	keyMD5    string
}

// Plain returns params for unencrypted storage.
func Plain() Params {
	return Params{}
}

// WithKey returns SSE-C params for the given 32-byte key.
func WithKey(key [32]byte) Params {
	sum := md5.Sum(key[:])
	return Params{
		encrypted: true,
		key:       key,
		keyMD5:    base64.StdEncoding.EncodeToString(sum[:]),
	}
}

// NewFromHeaders derives the encryption choice from the SSE-C request
// headers. Absent headers mean plaintext storage; otherwise the algorithm
// and key are required, and the key MD5, when present, must match the key.
func NewFromHeaders(h http.Header) (Params, error) {
	alg := h.Get(HeaderSSECAlgorithm)
	keyB64 := h.Get(HeaderSSECKey)
	keyMD5 := h.Get(HeaderSSECKeyMD5)

	if alg == "" && keyB64 == "" && keyMD5 == "" {
		return Plain(), nil
	}
	if alg != sseCustomerAlgorithm {
		return Params{}, fmt.Errorf("invalid server-side encryption algorithm %q", alg)
	}
	rawKey, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return Params{}, fmt.Errorf("failed to decode customer encryption key: %w", err)
	}
	if len(rawKey) != 32 {
		return Params{}, fmt.Errorf("customer encryption key must be 32 bytes, got %d", len(rawKey))
	}
	sum := md5.Sum(rawKey)
	if keyMD5 != "" && keyMD5 != base64.StdEncoding.EncodeToString(sum[:]) {
		return Params{}, fmt.Errorf("customer encryption key MD5 does not match key")
	}
	var key [32]byte
	copy(key[:], rawKey)
	return WithKey(key), nil
}

// IsEncrypted reports whether block and inline payloads are sealed.
func (p Params) IsEncrypted() bool { return p.encrypted }

// EncryptHeaders seals the object headers for storage in the version
// record: plain JSON when unencrypted, AES-GCM sealed JSON otherwise.
func (p Params) EncryptHeaders(headers model.ObjectHeaders) (model.SealedHeaders, error) {
	blob, err := json.Marshal(&headers)
	if err != nil {
		return model.SealedHeaders{}, err
	}
	if !p.encrypted {
		return model.SealedHeaders{Blob: blob}, nil
	}
	sealed, err := p.seal(blob)
	if err != nil {
		return model.SealedHeaders{}, err
	}
	return model.SealedHeaders{Encrypted: true, Blob: sealed}, nil
}

// DecryptHeaders recovers the object headers from a sealed blob.
func (p Params) DecryptHeaders(sealed model.SealedHeaders) (model.ObjectHeaders, error) {
	blob := sealed.Blob
	if sealed.Encrypted {
		var err error
		blob, err = p.open(blob)
		if err != nil {
			return model.ObjectHeaders{}, err
		}
	}
	var headers model.ObjectHeaders
	if err := json.Unmarshal(blob, &headers); err != nil {
		return model.ObjectHeaders{}, fmt.Errorf("failed to decode object headers: %w", err)
	}
	return headers, nil
}

// EncryptBlob seals an inline payload. Plaintext params return the input
// unchanged.
func (p Params) EncryptBlob(b []byte) ([]byte, error) {
	if !p.encrypted {
		return b, nil
	}
	return p.seal(b)
}

// DecryptBlob opens an inline payload sealed by EncryptBlob.
func (p Params) DecryptBlob(b []byte) ([]byte, error) {
	if !p.encrypted {
		return b, nil
	}
	return p.open(b)
}

// EncryptBlock seals one streamed block. This is CPU-bound; callers run it
// off the hot path.
func (p Params) EncryptBlock(b []byte) ([]byte, error) {
	if !p.encrypted {
		return b, nil
	}
	return p.seal(b)
}

// DecryptBlock opens one streamed block.
func (p Params) DecryptBlock(b []byte) ([]byte, error) {
	if !p.encrypted {
		return b, nil
	}
	return p.open(b)
}

// ETagFromMD5 derives the response etag from the plaintext MD5: the hex
// digest for plaintext storage, and for encrypted objects a deterministic
// value keyed on the encryption key, so identical plaintext under the same
// key yields the same etag without revealing the plaintext MD5.
func (p Params) ETagFromMD5(md5sum []byte) string {
	if !p.encrypted {
		return hex.EncodeToString(md5sum)
	}
	h, err := blake2b.New256(p.key[:])
	if err != nil {
		panic(fmt.Sprintf("blake2b keyed init: %v", err))
	}
	h.Write(md5sum)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// AddResponseHeaders mirrors the negotiated encryption back to the client.
func (p Params) AddResponseHeaders(h http.Header) {
	if p.encrypted {
		h.Set(HeaderSSECAlgorithm, sseCustomerAlgorithm)
		h.Set(HeaderSSECKeyMD5, p.keyMD5)
	}
}

// seal encrypts with AES-256-GCM, nonce prepended.
func (p Params) seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(p.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts data sealed by seal.
func (p Params) open(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(p.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
