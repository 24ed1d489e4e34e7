package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBytesCopied(t *testing.T) {
	copied, ok := parseBytesCopied("1234567890 bytes (1.2 GB, 1.1 GiB) copied, 10.4 s, 112 MB/s")
	assert.True(t, ok)
	assert.Equal(t, int64(1234567890), copied)
}

func TestParseBytesCopiedNoMatch(t *testing.T) {
	_, ok := parseBytesCopied("dd: some unrelated stderr line")
	assert.False(t, ok)
}

func TestScanCROrLFSplitsOnCarriageReturn(t *testing.T) {
	data := []byte("first\rsecond\rthird")
	advance, token, err := scanCROrLF(data, false)
	assert.NoError(t, err)
	assert.Equal(t, 6, advance)
	assert.Equal(t, "first", string(token))
}

func TestScanCROrLFFlushesAtEOF(t *testing.T) {
	advance, token, err := scanCROrLF([]byte("tail"), true)
	assert.NoError(t, err)
	assert.Equal(t, 4, advance)
	assert.Equal(t, "tail", string(token))
}
