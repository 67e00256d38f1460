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
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func testSchedulerConfig() Config {
	cfg := DefaultConfig()
	cfg.MinChallengePeriod = 2
	cfg.MaxChallengePeriod = 5
	cfg.CheckpointChallengePeriod = 4
	cfg.ChallengeTolerance = 3
	return cfg
}

func newTestScheduler(t *testing.T) (*Scheduler, datastore.Batching) {
	t.Helper()
	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	s, err := NewScheduler(context.Background(), testSchedulerConfig(), ds)
	require.NoError(t, err)
	return s, ds
}

func testSeed(i int) common.Hash {
	return common.Hash(blake2b.Sum256([]byte{0x5e, byte(i)}))
}

func testProvider(i int) common.Hash {
	return common.Hash(blake2b.Sum256([]byte{0x99, byte(i)}))
}

func TestSchedulerRoundAfterPeriod(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	p := testProvider(0)
	require.NoError(t, s.Register(ctx, p, 0, 0)) // stake 0, period 5

	rounds, faults, err := s.Tick(ctx, 3, testSeed(3))
	require.NoError(t, err)
	require.Empty(t, rounds, "period has not elapsed yet")
	require.Empty(t, faults)

	rounds, faults, err = s.Tick(ctx, 5, testSeed(5))
	require.NoError(t, err)
	require.Empty(t, faults)
	require.Len(t, rounds, 1)
	require.Equal(t, p, rounds[0].Provider)
	require.Equal(t, uint64(5), rounds[0].Block)

	// the random slots must be exactly the derived quota
	require.GreaterOrEqual(t, len(rounds[0].Challenges), 10)
	for i, want := range RandomRound(testSeed(5), p, 10) {
		require.Equal(t, want, rounds[0].Challenges[i])
	}

	_, open := s.Challenged(p)
	require.True(t, open)
}

func TestSchedulerStakeShortensPeriod(t *testing.T) {
	s, _ := newTestScheduler(t)

	require.Equal(t, uint64(5), s.stakeToChallengePeriod(0))
	require.Equal(t, uint64(4), s.stakeToChallengePeriod(1000))
	require.Equal(t, uint64(2), s.stakeToChallengePeriod(3000))
	// clamped at the minimum however large the stake
	require.Equal(t, uint64(2), s.stakeToChallengePeriod(1_000_000))
}

func TestSchedulerCheckpointFoldsQueues(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	p := testProvider(0)
	require.NoError(t, s.Register(ctx, p, 0, 0))

	regular := Challenge{Key: common.Hash(blake2b.Sum256([]byte("regular")))}
	urgent := Challenge{Key: common.Hash(blake2b.Sum256([]byte("urgent"))), RemoveMutation: true}
	require.NoError(t, s.QueueChallenge(ctx, regular))
	require.NoError(t, s.QueuePriorityChallenge(ctx, urgent))

	rounds, _, err := s.Tick(ctx, 5, testSeed(5))
	require.NoError(t, err)
	require.Len(t, rounds, 1)

	chs := rounds[0].Challenges
	require.Len(t, chs, 12, "10 random + 2 queued")
	// priority entries come before regular ones
	require.Equal(t, urgent, chs[10])
	require.Equal(t, regular, chs[11])

	// the queues were drained
	require.Equal(t, 0, s.queue.Len())
	require.Equal(t, 0, s.priority.Len())
}

func TestSchedulerCheckpointSharedAcrossProviders(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	require.NoError(t, s.Register(ctx, testProvider(0), 0, 0))
	require.NoError(t, s.Register(ctx, testProvider(1), 0, 0))

	queued := Challenge{Key: common.Hash(blake2b.Sum256([]byte("shared"))), RemoveMutation: true}
	require.NoError(t, s.QueuePriorityChallenge(ctx, queued))

	rounds, _, err := s.Tick(ctx, 5, testSeed(5))
	require.NoError(t, err)
	require.Len(t, rounds, 2)

	// the checkpoint set belongs to the block: every provider due at it
	// answers the same queued challenges
	for _, round := range rounds {
		require.Len(t, round.Challenges, 11)
		require.Equal(t, queued, round.Challenges[10])
	}
	require.Equal(t, 0, s.priority.Len())
}

func TestSchedulerCheckpointCursorOnlyAdvancesWhenTaken(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	queued := Challenge{Key: common.Hash(blake2b.Sum256([]byte("queued")))}
	require.NoError(t, s.QueueChallenge(ctx, queued))

	// checkpoint is due at block 4 but no provider has a round due, so
	// the queued challenge must survive for the next eligible round
	rounds, _, err := s.Tick(ctx, 4, testSeed(4))
	require.NoError(t, err)
	require.Empty(t, rounds)
	require.Equal(t, 1, s.queue.Len())

	p := testProvider(0)
	require.NoError(t, s.Register(ctx, p, 0, 0))

	rounds, _, err = s.Tick(ctx, 5, testSeed(5))
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	require.Len(t, rounds[0].Challenges, 11)
	require.Equal(t, queued, rounds[0].Challenges[10])
}

func TestSchedulerProofSubmission(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	p := testProvider(0)
	require.NoError(t, s.Register(ctx, p, 0, 0))

	rounds, _, err := s.Tick(ctx, 5, testSeed(5))
	require.NoError(t, err)
	require.Len(t, rounds, 1)

	require.ErrorIs(t, s.MarkProofSubmitted(ctx, p, 4), ErrNoSuchRound)
	require.NoError(t, s.MarkProofSubmitted(ctx, p, 5))

	_, open := s.Challenged(p)
	require.False(t, open)

	// no new round until another full period elapsed
	rounds, _, err = s.Tick(ctx, 7, testSeed(7))
	require.NoError(t, err)
	require.Empty(t, rounds)

	rounds, _, err = s.Tick(ctx, 10, testSeed(10))
	require.NoError(t, err)
	require.Len(t, rounds, 1)
}

func TestSchedulerTimeoutFault(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	p := testProvider(0)
	require.NoError(t, s.Register(ctx, p, 0, 0))

	rounds, _, err := s.Tick(ctx, 5, testSeed(5))
	require.NoError(t, err)
	require.Len(t, rounds, 1)

	// within tolerance: no fault yet
	_, faults, err := s.Tick(ctx, 7, testSeed(7))
	require.NoError(t, err)
	require.Empty(t, faults)

	_, faults, err = s.Tick(ctx, 8, testSeed(8))
	require.NoError(t, err)
	require.Len(t, faults, 1)
	require.Equal(t, Fault{Provider: p, Block: 5}, faults[0])

	// the fault clears the open round and re-arms the provider
	_, open := s.Challenged(p)
	require.False(t, open)

	rounds, faults, err = s.Tick(ctx, 13, testSeed(13))
	require.NoError(t, err)
	require.Empty(t, faults)
	require.Len(t, rounds, 1)
}

func TestSchedulerRoundForAndRestart(t *testing.T) {
	ctx := context.Background()
	s, ds := newTestScheduler(t)

	p := testProvider(0)
	require.NoError(t, s.Register(ctx, p, 0, 0))

	rounds, _, err := s.Tick(ctx, 5, testSeed(5))
	require.NoError(t, err)
	require.Len(t, rounds, 1)

	round, err := s.RoundFor(ctx, p, 5)
	require.NoError(t, err)
	require.Equal(t, rounds[0].Challenges, round.Challenges)

	_, err = s.RoundFor(ctx, p, 6)
	require.ErrorIs(t, err, ErrNoSuchRound)

	// a restarted scheduler sees the same state
	restarted, err := NewScheduler(ctx, testSchedulerConfig(), ds)
	require.NoError(t, err)

	round, err = restarted.RoundFor(ctx, p, 5)
	require.NoError(t, err)
	require.Equal(t, rounds[0].Challenges, round.Challenges)

	block, open := restarted.Challenged(p)
	require.True(t, open)
	require.Equal(t, uint64(5), block)
}

func TestSchedulerDeterministicProviderOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Register(ctx, testProvider(i), 0, 0))
	}

	rounds, _, err := s.Tick(ctx, 5, testSeed(5))
	require.NoError(t, err)
	require.Len(t, rounds, 5)
	for i := 1; i < len(rounds); i++ {
		require.Less(t, rounds[i-1].Provider.Hex(), rounds[i].Provider.Hex())
	}
}

func TestSchedulerUnknownProvider(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	require.ErrorIs(t, s.MarkProofSubmitted(ctx, testProvider(9), 5), ErrUnknownProvider)
}
