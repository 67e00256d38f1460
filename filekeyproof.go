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
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/blake2b"
)

// ChunkSize is the size of one content chunk, in bytes. The fingerprint
// of a file is the root of a binary Merkle tree over its chunks.
const ChunkSize = 1024

// ProofScope frames what a file key proof is submitted for. The same
// chunk inclusion argument backs a challenge response, a BSP volunteer
// confirmation and an MSP bucket acceptance, but the framings are not
// interchangeable.
type ProofScope uint8

const (
	ScopeChallenge ProofScope = iota
	ScopeBspConfirm
	ScopeMspAccept
)

var (
	// ErrFingerprintMismatch is returned when a file's content does not
	// hash to the fingerprint its metadata commits to.
	ErrFingerprintMismatch = errors.New("content does not match committed fingerprint")

	// ErrChunkOutOfRange is returned when a proof names a chunk index
	// beyond the file size.
	ErrChunkOutOfRange = errors.New("challenged chunk index out of range")

	// ErrScopeMismatch is returned when a proof is submitted under a
	// different framing than it was generated for.
	ErrScopeMismatch = errors.New("file key proof scope mismatch")
)

// FileKeyProof proves that the file committed under a file key contains
// a specific chunk, consistent with the fingerprint recorded in the
// forest leaf. It is independent of the file's position in the forest.
type FileKeyProof struct {
	FileKey    common.Hash   `json:"fileKey"`
	Metadata   FileMetadata  `json:"metadata"`
	Scope      ProofScope    `json:"scope"`
	ChunkIndex uint64        `json:"chunkIndex"`
	Chunk      hexutil.Bytes `json:"chunk"`
	Siblings   []common.Hash `json:"siblings"`
}

func (p *FileKeyProof) Serialize() ([]byte, error) {
	return rlp.EncodeToBytes(p)
}

func DeserializeFileKeyProof(blob []byte) (*FileKeyProof, error) {
	proof := new(FileKeyProof)
	if err := rlp.DecodeBytes(blob, proof); err != nil {
		return nil, err
	}
	return proof, nil
}

func chunkDigest(chunk []byte) common.Hash {
	h, _ := blake2b.New256(nil)
	h.Write(chunk)
	return common.BytesToHash(h.Sum(nil))
}

func pairDigest(left, right common.Hash) common.Hash {
	h, _ := blake2b.New256(nil)
	h.Write(left[:])
	h.Write(right[:])
	return common.BytesToHash(h.Sum(nil))
}

func chunkHashes(data []byte) []common.Hash {
	if len(data) == 0 {
		return []common.Hash{chunkDigest(nil)}
	}
	hashes := make([]common.Hash, 0, (len(data)+ChunkSize-1)/ChunkSize)
	for off := 0; off < len(data); off += ChunkSize {
		end := off + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		hashes = append(hashes, chunkDigest(data[off:end]))
	}
	return hashes
}

// Fingerprint computes the content commitment of a file: a binary
// Merkle tree over its chunk digests. An odd node at the end of a level
// is promoted unchanged.
func Fingerprint(data []byte) common.Hash {
	level := chunkHashes(data)
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, pairDigest(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

// ChallengedChunk maps a challenge key to the chunk index the provider
// must substantiate, uniformly over the file's chunks.
func ChallengedChunk(challenge common.Hash, chunks uint64) uint64 {
	return binary.BigEndian.Uint64(challenge[24:]) % chunks
}

// GenerateFileKeyProof builds the chunk inclusion proof for the chunk
// of `data` selected by the challenge key.
func GenerateFileKeyProof(meta *FileMetadata, data []byte, chall common.Hash, scope ProofScope) (*FileKeyProof, error) {
	if uint64(len(data)) != meta.FileSize {
		return nil, ErrFingerprintMismatch
	}
	if Fingerprint(data) != meta.Fingerprint {
		return nil, ErrFingerprintMismatch
	}
	fileKey, err := meta.FileKey()
	if err != nil {
		return nil, err
	}

	chunks := meta.Chunks()
	idx := ChallengedChunk(chall, chunks)

	start := idx * ChunkSize
	end := start + ChunkSize
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	chunk := append([]byte(nil), data[start:end]...)

	var siblings []common.Hash
	level := chunkHashes(data)
	pos := idx
	for len(level) > 1 {
		if pos^1 < uint64(len(level)) {
			siblings = append(siblings, level[pos^1])
		}
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, pairDigest(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
		pos /= 2
	}

	return &FileKeyProof{
		FileKey:    fileKey,
		Metadata:   *meta,
		Scope:      scope,
		ChunkIndex: idx,
		Chunk:      chunk,
		Siblings:   siblings,
	}, nil
}

// Verify checks the proof against its own metadata: the chunk index
// must be the one the challenge selects, the file key must match the
// metadata, and folding the chunk digest with the siblings must land on
// the committed fingerprint.
func (p *FileKeyProof) Verify(chall common.Hash, scope ProofScope) error {
	if p.Scope != scope {
		return ErrScopeMismatch
	}

	chunks := p.Metadata.Chunks()
	if p.ChunkIndex >= chunks {
		return ErrChunkOutOfRange
	}
	if p.ChunkIndex != ChallengedChunk(chall, chunks) {
		return ErrChunkOutOfRange
	}

	fileKey, err := p.Metadata.FileKey()
	if err != nil {
		return err
	}
	if fileKey != p.FileKey {
		return ErrFingerprintMismatch
	}

	// replay the fold; promotions happen exactly where the level width
	// is odd and this node is last
	cur := chunkDigest(p.Chunk)
	pos := p.ChunkIndex
	width := chunks
	sib := 0
	for width > 1 {
		if pos^1 < width {
			if sib >= len(p.Siblings) {
				return ErrFingerprintMismatch
			}
			if pos&1 == 0 {
				cur = pairDigest(cur, p.Siblings[sib])
			} else {
				cur = pairDigest(p.Siblings[sib], cur)
			}
			sib++
		}
		pos /= 2
		width = (width + 1) / 2
	}
	if sib != len(p.Siblings) {
		return ErrFingerprintMismatch
	}
	if cur != p.Metadata.Fingerprint {
		return ErrFingerprintMismatch
	}
	return nil
}
