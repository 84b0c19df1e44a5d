package stream

import (
	"crypto/md5"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsyncHasherMatchesDirectDigest(t *testing.T) {
	blocks := [][]byte{
		[]byte("hello "),
		[]byte("world"),
		{},
		[]byte("!"),
	}

	md5Hasher := NewAsyncHasher(md5.New())
	sha256Hasher := NewAsyncHasher(sha256.New())
	for _, b := range blocks {
		md5Hasher.Update(b)
		sha256Hasher.Update(b)
	}

	expectedMD5 := md5.Sum([]byte("hello world!"))
	expectedSHA := sha256.Sum256([]byte("hello world!"))

	assert.Equal(t, expectedMD5[:], md5Hasher.Finalize())
	assert.Equal(t, expectedSHA[:], sha256Hasher.Finalize())
}

func TestAsyncHasherEmptyStream(t *testing.T) {
	hasher := NewAsyncHasher(sha256.New())
	expected := sha256.Sum256(nil)
	assert.Equal(t, expected[:], hasher.Finalize())
}

func TestAsyncHasherManyBlocksDeterministic(t *testing.T) {
	// digest order must follow submission order regardless of scheduling
	var direct []byte
	hasher := NewAsyncHasher(sha256.New())
	for i := 0; i < 1000; i++ {
		block := []byte{byte(i), byte(i >> 8)}
		direct = append(direct, block...)
		hasher.Update(block)
	}
	expected := sha256.Sum256(direct)
	assert.Equal(t, expected[:], hasher.Finalize())
}
