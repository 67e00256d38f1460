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

package challenge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ipfs/go-datastore"
	"golang.org/x/xerrors"
)

var (
	// ErrChallengesQueueOverflow is returned when the bounded manual
	// challenge queue is full. The submission fee is not consumed.
	ErrChallengesQueueOverflow = errors.New("challenges queue is full")

	// ErrPriorityChallengesQueueOverflow is the same condition for the
	// priority queue.
	ErrPriorityChallengesQueueOverflow = errors.New("priority challenges queue is full")
)

// Queue is a bounded FIFO of manually submitted challenges, persisted
// in the datastore so queued challenges survive a restart. Entries are
// consumed when a checkpoint round folds them into a block's challenge
// set.
type Queue struct {
	ds       datastore.Datastore
	name     string
	capacity int
	overflow error

	mu   sync.Mutex
	head uint64
	tail uint64
}

func queueItemKey(name string, seq uint64) datastore.Key {
	return datastore.NewKey(fmt.Sprintf("/%s/item/%016x", name, seq))
}

func queueMetaKey(name, field string) datastore.Key {
	return datastore.NewKey(fmt.Sprintf("/%s/meta/%s", name, field))
}

// NewQueue opens (or creates) a named queue on the datastore.
func NewQueue(ctx context.Context, ds datastore.Datastore, name string, capacity int, overflow error) (*Queue, error) {
	q := &Queue{ds: ds, name: name, capacity: capacity, overflow: overflow}

	var err error
	if q.head, err = q.loadCounter(ctx, "head"); err != nil {
		return nil, err
	}
	if q.tail, err = q.loadCounter(ctx, "tail"); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) loadCounter(ctx context.Context, field string) (uint64, error) {
	raw, err := q.ds.Get(ctx, queueMetaKey(q.name, field))
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, xerrors.Errorf("loading queue %s %s: %w", q.name, field, err)
	case len(raw) != 8:
		return 0, xerrors.Errorf("queue %s: corrupted %s counter", q.name, field)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (q *Queue) storeCounter(ctx context.Context, field string, val uint64) error {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], val)
	return q.ds.Put(ctx, queueMetaKey(q.name, field), raw[:])
}

// Len returns the number of queued challenges.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.tail - q.head)
}

// Push appends a challenge, failing with the queue's overflow error
// when the bound is reached.
func (q *Queue) Push(ctx context.Context, ch Challenge) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if int(q.tail-q.head) >= q.capacity {
		return q.overflow
	}

	enc, err := rlp.EncodeToBytes(&ch)
	if err != nil {
		return err
	}
	if err := q.ds.Put(ctx, queueItemKey(q.name, q.tail), enc); err != nil {
		return xerrors.Errorf("persisting challenge: %w", err)
	}
	q.tail++
	return q.storeCounter(ctx, "tail", q.tail)
}

// PopUpTo removes and returns at most n challenges, oldest first.
func (q *Queue) PopUpTo(ctx context.Context, n int) ([]Challenge, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Challenge
	for len(out) < n && q.head < q.tail {
		key := queueItemKey(q.name, q.head)
		raw, err := q.ds.Get(ctx, key)
		if err != nil {
			return nil, xerrors.Errorf("reading queued challenge: %w", err)
		}
		var ch Challenge
		if err := rlp.DecodeBytes(raw, &ch); err != nil {
			return nil, xerrors.Errorf("decoding queued challenge: %w", err)
		}
		if err := q.ds.Delete(ctx, key); err != nil {
			return nil, err
		}
		q.head++
		out = append(out, ch)
	}
	if err := q.storeCounter(ctx, "head", q.head); err != nil {
		return nil, err
	}
	return out, nil
}
