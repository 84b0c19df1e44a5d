package types

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// UUID is a 256-bit random identifier. It is used for object version
// identity and for bucket identity.
type UUID [32]byte

// Hash is a 256-bit content address: the BLAKE2b digest of a block as it
// is stored (ciphertext for encrypted blocks, plaintext otherwise).
type Hash [32]byte

// BucketID identifies a bucket. Bucket IDs are random, one per bucket.
type BucketID = UUID

// ZeroUUID is the all-zero UUID, reported when an object unexpectedly has
// no versions to point at.
var ZeroUUID = UUID{}

// GenUUID returns a fresh random UUID.
func GenUUID() UUID {
	var u UUID
	if _, err := rand.Read(u[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("read random: %v", err))
	}
	return u
}

func (u UUID) Hex() string    { return hex.EncodeToString(u[:]) }
func (u UUID) String() string { return u.Hex() }
func (u UUID) IsZero() bool   { return u == UUID{} }

// Compare orders UUIDs bytewise, so versions with equal timestamps have a
// deterministic total order across replicas.
func (u UUID) Compare(other UUID) int {
	return bytes.Compare(u[:], other[:])
}

func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.Hex()), nil
}

func (u *UUID) UnmarshalText(text []byte) error {
	return decodeFixed32((*[32]byte)(u), text)
}

// ParseUUID decodes a 64-character hex string into a UUID.
func ParseUUID(s string) (UUID, error) {
	var u UUID
	err := decodeFixed32((*[32]byte)(&u), []byte(s))
	return u, err
}

func (h Hash) Hex() string    { return hex.EncodeToString(h[:]) }
func (h Hash) String() string { return h.Hex() }
func (h Hash) IsZero() bool   { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	return decodeFixed32((*[32]byte)(h), text)
}

// ParseHash decodes a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	err := decodeFixed32((*[32]byte)(&h), []byte(s))
	return h, err
}

func decodeFixed32(dst *[32]byte, text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("failed to decode hex identifier: %w", err)
	}
	if len(b) != 32 {
		return fmt.Errorf("identifier must be 32 bytes, got %d", len(b))
	}
	copy(dst[:], b)
	return nil
}

// NowMsec returns the current time in milliseconds since the Unix epoch.
// All version timestamps use this resolution.
func NowMsec() uint64 {
	return uint64(time.Now().UnixMilli())
}
