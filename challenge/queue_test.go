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
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func queueChallenge(i int) Challenge {
	return Challenge{Key: common.Hash(blake2b.Sum256([]byte{byte(i)}))}
}

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	ds := datastore.NewMapDatastore()

	q, err := NewQueue(ctx, ds, "queue", 16, ErrChallengesQueueOverflow)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(ctx, queueChallenge(i)))
	}
	require.Equal(t, 5, q.Len())

	out, err := q.PopUpTo(ctx, 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, ch := range out {
		require.Equal(t, queueChallenge(i), ch)
	}
	require.Equal(t, 2, q.Len())

	out, err = q.PopUpTo(ctx, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 0, q.Len())
}

func TestQueueOverflow(t *testing.T) {
	ctx := context.Background()
	ds := datastore.NewMapDatastore()

	q, err := NewQueue(ctx, ds, "queue", 2, ErrChallengesQueueOverflow)
	require.NoError(t, err)

	require.NoError(t, q.Push(ctx, queueChallenge(0)))
	require.NoError(t, q.Push(ctx, queueChallenge(1)))
	require.ErrorIs(t, q.Push(ctx, queueChallenge(2)), ErrChallengesQueueOverflow)

	// draining frees capacity again
	_, err = q.PopUpTo(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Push(ctx, queueChallenge(2)))
}

func TestQueueSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	ds := datastore.NewMapDatastore()

	q, err := NewQueue(ctx, ds, "queue", 16, ErrChallengesQueueOverflow)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Push(ctx, queueChallenge(i)))
	}
	_, err = q.PopUpTo(ctx, 1)
	require.NoError(t, err)

	reopened, err := NewQueue(ctx, ds, "queue", 16, ErrChallengesQueueOverflow)
	require.NoError(t, err)
	require.Equal(t, 3, reopened.Len())

	out, err := reopened.PopUpTo(ctx, 10)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, queueChallenge(1), out[0])
}

func TestQueuesAreIndependent(t *testing.T) {
	ctx := context.Background()
	ds := datastore.NewMapDatastore()

	regular, err := NewQueue(ctx, ds, "queue", 16, ErrChallengesQueueOverflow)
	require.NoError(t, err)
	priority, err := NewQueue(ctx, ds, "priority", 16, ErrPriorityChallengesQueueOverflow)
	require.NoError(t, err)

	require.NoError(t, regular.Push(ctx, queueChallenge(0)))
	require.Equal(t, 1, regular.Len())
	require.Equal(t, 0, priority.Len())
}
