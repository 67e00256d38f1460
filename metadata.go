// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

package forest

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/blake2b"
)

// FileMetadata describes a stored file. It is immutable once the file
// is committed to a forest; the fingerprint is the root of the file's
// content chunk trie.
type FileMetadata struct {
	Owner       hexutil.Bytes `json:"owner"`
	BucketID    common.Hash   `json:"bucketId"`
	Location    hexutil.Bytes `json:"location"`
	Fingerprint common.Hash   `json:"fingerprint"`
	FileSize    uint64        `json:"fileSize"`
}

// Encode returns the canonical encoding of the metadata, which is also
// the leaf value committed to the forest.
func (m *FileMetadata) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(m)
}

// DecodeFileMetadata decodes a forest leaf value.
func DecodeFileMetadata(blob []byte) (*FileMetadata, error) {
	meta := new(FileMetadata)
	if err := rlp.DecodeBytes(blob, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// FileKey derives the 32-byte key under which this file is committed to
// a forest: the digest of the canonical metadata encoding.
func (m *FileMetadata) FileKey() (common.Hash, error) {
	enc, err := m.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(blake2b.Sum256(enc)), nil
}

// Chunks returns the number of content chunks the file splits into.
// The empty file still occupies one (empty) chunk.
func (m *FileMetadata) Chunks() uint64 {
	if m.FileSize == 0 {
		return 1
	}
	return (m.FileSize + ChunkSize - 1) / ChunkSize
}
