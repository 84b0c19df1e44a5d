package stream

import (
	"io"
)

// Chunker re-slices an upstream byte stream into blocks of exactly
// blockSize bytes; only the final block may be shorter. The concatenation
// of all returned blocks equals the upstream byte sequence.
type Chunker struct {
	r         io.Reader
	blockSize int
	readAll   bool
}

// NewChunker wraps the upstream reader. blockSize must be positive.
func NewChunker(r io.Reader, blockSize int) *Chunker {
	return &Chunker{r: r, blockSize: blockSize}
}

// Next returns the next block, or (nil, nil) once the upstream is
// exhausted. Each call returns a freshly allocated buffer that the caller
// owns. Upstream errors are propagated verbatim.
func (c *Chunker) Next() ([]byte, error) {
	if c.readAll {
		return nil, nil
	}
	buf := make([]byte, c.blockSize)
	n, err := io.ReadFull(c.r, buf)
	switch err {
	case nil:
		return buf, nil
	case io.EOF:
		c.readAll = true
		return nil, nil
	case io.ErrUnexpectedEOF:
		c.readAll = true
		return buf[:n], nil
	default:
		return nil, err
	}
}
