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
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	"github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("challenge")

var (
	// ErrUnknownProvider is returned for providers that never
	// registered with the scheduler.
	ErrUnknownProvider = errors.New("provider not registered with scheduler")

	// ErrNoSuchRound is returned when no challenge round was recorded
	// for a (provider, block) pair.
	ErrNoSuchRound = errors.New("no challenge round recorded for this block")
)

// Config carries the runtime constants of the challenge protocol.
type Config struct {
	// RandomChallengesPerRound is the fixed random challenge quota of
	// every round.
	RandomChallengesPerRound int

	// MaxCustomChallengesPerRound bounds the queued challenges folded
	// into a checkpoint round.
	MaxCustomChallengesPerRound int

	// CheckpointChallengePeriod is the number of blocks between
	// checkpoint rounds.
	CheckpointChallengePeriod uint64

	// ChallengeTolerance is how many blocks a provider may leave a
	// round unanswered before it is reported for slashing.
	ChallengeTolerance uint64

	// MinChallengePeriod and MaxChallengePeriod clamp the per-provider
	// proving period; StakeWeight is the stake divisor that shortens it.
	MinChallengePeriod uint64
	MaxChallengePeriod uint64
	StakeWeight        uint64

	// Queue bounds.
	QueueCapacity         int
	PriorityQueueCapacity int
}

// DefaultConfig mirrors the runtime constants the benchmark fixtures
// were generated with.
func DefaultConfig() Config {
	return Config{
		RandomChallengesPerRound:    10,
		MaxCustomChallengesPerRound: 10,
		CheckpointChallengePeriod:   10,
		ChallengeTolerance:          5,
		MinChallengePeriod:          2,
		MaxChallengePeriod:          30,
		StakeWeight:                 1000,
		QueueCapacity:               128,
		PriorityQueueCapacity:       128,
	}
}

// Round is one block's worth of challenges for one provider.
type Round struct {
	Provider   common.Hash
	Block      uint64
	Seed       common.Hash
	Challenges []Challenge
}

// Fault reports a provider that left a round unanswered past the
// tolerance. It is surfaced for slashing, never retried.
type Fault struct {
	Provider common.Hash
	Block    uint64
}

type providerState struct {
	Stake     uint64
	LastProof uint64
	Pending   uint64 // block of the open round, 0 when none
}

// Scheduler assembles challenge rounds, block by block. All of its
// decisions are deterministic in (seed, registered providers, queued
// challenges), so an independent verifier reconstructs the same rounds
// from the persisted records.
type Scheduler struct {
	cfg Config
	ds  datastore.Datastore

	queue    *Queue
	priority *Queue

	mu             sync.Mutex
	providers      map[common.Hash]*providerState
	lastCheckpoint uint64
}

func providerKey(id common.Hash) datastore.Key {
	return datastore.NewKey("/providers/" + id.Hex())
}

func roundKey(id common.Hash, block uint64) datastore.Key {
	return datastore.NewKey(fmt.Sprintf("/rounds/%016x/%s", block, id.Hex()))
}

var lastCheckpointKey = datastore.NewKey("/last-checkpoint")

// NewScheduler opens a scheduler on the given datastore namespace,
// restoring queues, provider states and the checkpoint cursor.
func NewScheduler(ctx context.Context, cfg Config, ds datastore.Batching) (*Scheduler, error) {
	s := &Scheduler{
		cfg:       cfg,
		ds:        namespace.Wrap(ds, datastore.NewKey("/challenge")),
		providers: make(map[common.Hash]*providerState),
	}

	var err error
	if s.queue, err = NewQueue(ctx, s.ds, "queue", cfg.QueueCapacity, ErrChallengesQueueOverflow); err != nil {
		return nil, err
	}
	if s.priority, err = NewQueue(ctx, s.ds, "priority", cfg.PriorityQueueCapacity, ErrPriorityChallengesQueueOverflow); err != nil {
		return nil, err
	}

	if err := s.restore(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) restore(ctx context.Context) error {
	raw, err := s.ds.Get(ctx, lastCheckpointKey)
	switch {
	case errors.Is(err, datastore.ErrNotFound):
	case err != nil:
		return xerrors.Errorf("restoring checkpoint cursor: %w", err)
	default:
		if err := rlp.DecodeBytes(raw, &s.lastCheckpoint); err != nil {
			return err
		}
	}

	res, err := s.ds.Query(ctx, query.Query{Prefix: "/providers"})
	if err != nil {
		return xerrors.Errorf("restoring provider states: %w", err)
	}
	defer res.Close()
	for r := range res.Next() {
		if r.Error != nil {
			return r.Error
		}
		st := new(providerState)
		if err := rlp.DecodeBytes(r.Value, st); err != nil {
			return err
		}
		id := common.HexToHash(r.Key[len("/providers/"):])
		s.providers[id] = st
	}
	return nil
}

func (s *Scheduler) persistProvider(ctx context.Context, id common.Hash, st *providerState) error {
	enc, err := rlp.EncodeToBytes(st)
	if err != nil {
		return err
	}
	return s.ds.Put(ctx, providerKey(id), enc)
}

// Register adds a provider to the challenge rotation. Its first round
// becomes due one full period after the current block.
func (s *Scheduler) Register(ctx context.Context, id common.Hash, stake, currentBlock uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[id]; ok {
		return xerrors.Errorf("provider %s: already registered", id)
	}
	st := &providerState{Stake: stake, LastProof: currentBlock}
	s.providers[id] = st
	return s.persistProvider(ctx, id, st)
}

// QueueChallenge submits a manual challenge.
func (s *Scheduler) QueueChallenge(ctx context.Context, ch Challenge) error {
	return s.queue.Push(ctx, ch)
}

// QueuePriorityChallenge submits a priority challenge; these are folded
// into checkpoint rounds before regular ones.
func (s *Scheduler) QueuePriorityChallenge(ctx context.Context, ch Challenge) error {
	return s.priority.Push(ctx, ch)
}

// stakeToChallengePeriod maps a provider's stake to its proving period:
// more stake, shorter period, clamped to the configured bounds.
func (s *Scheduler) stakeToChallengePeriod(stake uint64) uint64 {
	cut := stake / s.cfg.StakeWeight
	if cut >= s.cfg.MaxChallengePeriod-s.cfg.MinChallengePeriod {
		return s.cfg.MinChallengePeriod
	}
	return s.cfg.MaxChallengePeriod - cut
}

// Tick advances the scheduler to `block`, assembling a round for every
// provider whose period elapsed and reporting providers that timed out
// on an earlier round. Checkpoint rounds additionally consume queued
// challenges, priority first, up to the per-round budget.
func (s *Scheduler) Tick(ctx context.Context, block uint64, seed common.Hash) ([]*Round, []Fault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	checkpointDue := block-s.lastCheckpoint >= s.cfg.CheckpointChallengePeriod
	checkpointTaken := false

	// deterministic provider order
	ids := make([]common.Hash, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	var (
		rounds        []*Round
		faults        []Fault
		checkpointChs []Challenge
	)
	for _, id := range ids {
		st := s.providers[id]

		if st.Pending != 0 && block-st.Pending >= s.cfg.ChallengeTolerance {
			log.Warnw("provider missed challenge round", "provider", id, "round", st.Pending, "block", block)
			faults = append(faults, Fault{Provider: id, Block: st.Pending})
			st.Pending = 0
			st.LastProof = block // re-arm after the fault is reported
			if err := s.persistProvider(ctx, id, st); err != nil {
				return nil, nil, err
			}
		}
		if st.Pending != 0 {
			continue
		}
		if block-st.LastProof < s.stakeToChallengePeriod(st.Stake) {
			continue
		}

		chs := RandomRound(seed, id, s.cfg.RandomChallengesPerRound)
		if checkpointDue {
			// the checkpoint set belongs to the block: it is drained once
			// and shared by every round assembled at it
			if !checkpointTaken {
				popped, err := s.priority.PopUpTo(ctx, s.cfg.MaxCustomChallengesPerRound)
				if err != nil {
					return nil, nil, err
				}
				if rest := s.cfg.MaxCustomChallengesPerRound - len(popped); rest > 0 {
					more, err := s.queue.PopUpTo(ctx, rest)
					if err != nil {
						return nil, nil, err
					}
					popped = append(popped, more...)
				}
				checkpointChs = popped
				checkpointTaken = true
			}
			chs = append(chs, checkpointChs...)
		}

		round := &Round{Provider: id, Block: block, Seed: seed, Challenges: chs}
		enc, err := rlp.EncodeToBytes(round)
		if err != nil {
			return nil, nil, err
		}
		if err := s.ds.Put(ctx, roundKey(id, block), enc); err != nil {
			return nil, nil, xerrors.Errorf("persisting round: %w", err)
		}

		st.Pending = block
		if err := s.persistProvider(ctx, id, st); err != nil {
			return nil, nil, err
		}
		rounds = append(rounds, round)
		log.Debugw("assembled challenge round", "provider", id, "block", block, "challenges", len(chs))
	}

	// the checkpoint cursor only advances once its challenges were
	// actually folded into a round; otherwise they stay queued
	if checkpointDue && checkpointTaken {
		s.lastCheckpoint = block
		enc, err := rlp.EncodeToBytes(&s.lastCheckpoint)
		if err != nil {
			return nil, nil, err
		}
		if err := s.ds.Put(ctx, lastCheckpointKey, enc); err != nil {
			return nil, nil, err
		}
	}

	return rounds, faults, nil
}

// RoundFor returns the persisted challenge round for a provider at a
// block; the verifier uses it to reconstruct the expected challenge
// set.
func (s *Scheduler) RoundFor(ctx context.Context, id common.Hash, block uint64) (*Round, error) {
	raw, err := s.ds.Get(ctx, roundKey(id, block))
	if errors.Is(err, datastore.ErrNotFound) {
		return nil, ErrNoSuchRound
	}
	if err != nil {
		return nil, err
	}
	round := new(Round)
	if err := rlp.DecodeBytes(raw, round); err != nil {
		return nil, err
	}
	return round, nil
}

// MarkProofSubmitted resolves a provider's open round after a valid
// proof.
func (s *Scheduler) MarkProofSubmitted(ctx context.Context, id common.Hash, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.providers[id]
	if !ok {
		return ErrUnknownProvider
	}
	if st.Pending != block {
		return ErrNoSuchRound
	}
	st.Pending = 0
	st.LastProof = block
	return s.persistProvider(ctx, id, st)
}

// Challenged reports whether the provider has an open round.
func (s *Scheduler) Challenged(id common.Hash) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.providers[id]
	if !ok || st.Pending == 0 {
		return 0, false
	}
	return st.Pending, true
}
