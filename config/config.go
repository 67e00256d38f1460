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

// Package config loads and writes the daemon's TOML configuration.
package config

import (
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"

	"github.com/storagehub/go-forest/challenge"
)

// Config is the daemon configuration, serialized as TOML in the repo
// directory.
type Config struct {
	API       API
	Challenge Challenge
}

// API configures the JSON-RPC endpoint.
type API struct {
	ListenAddress string
	Timeout       Duration
}

// Challenge carries the challenge protocol constants. They must match
// the chain runtime the daemon proves against.
type Challenge struct {
	RandomChallengesPerRound    int
	MaxCustomChallengesPerRound int
	CheckpointChallengePeriod   uint64
	ChallengeTolerance          uint64
	MinChallengePeriod          uint64
	MaxChallengePeriod          uint64
	StakeWeight                 uint64
	QueueCapacity               int
	PriorityQueueCapacity       int
}

// DefaultConfig returns the configuration a fresh repo is initialized
// with.
func DefaultConfig() *Config {
	sc := challenge.DefaultConfig()
	return &Config{
		API: API{
			ListenAddress: "127.0.0.1:26658",
			Timeout:       Duration(30e9),
		},
		Challenge: Challenge{
			RandomChallengesPerRound:    sc.RandomChallengesPerRound,
			MaxCustomChallengesPerRound: sc.MaxCustomChallengesPerRound,
			CheckpointChallengePeriod:   sc.CheckpointChallengePeriod,
			ChallengeTolerance:          sc.ChallengeTolerance,
			MinChallengePeriod:          sc.MinChallengePeriod,
			MaxChallengePeriod:          sc.MaxChallengePeriod,
			StakeWeight:                 sc.StakeWeight,
			QueueCapacity:               sc.QueueCapacity,
			PriorityQueueCapacity:       sc.PriorityQueueCapacity,
		},
	}
}

// SchedulerConfig converts the TOML section into the scheduler's
// runtime config.
func (c *Config) SchedulerConfig() challenge.Config {
	cfg := challenge.DefaultConfig()
	cfg.RandomChallengesPerRound = c.Challenge.RandomChallengesPerRound
	cfg.MaxCustomChallengesPerRound = c.Challenge.MaxCustomChallengesPerRound
	cfg.CheckpointChallengePeriod = c.Challenge.CheckpointChallengePeriod
	cfg.ChallengeTolerance = c.Challenge.ChallengeTolerance
	cfg.MinChallengePeriod = c.Challenge.MinChallengePeriod
	cfg.MaxChallengePeriod = c.Challenge.MaxChallengePeriod
	cfg.StakeWeight = c.Challenge.StakeWeight
	cfg.QueueCapacity = c.Challenge.QueueCapacity
	cfg.PriorityQueueCapacity = c.Challenge.PriorityQueueCapacity
	return cfg
}

// FromFile loads config from a TOML file, returning defaults when the
// file does not exist.
func FromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return FromReader(f)
}

// FromReader loads config from a reader, layered over defaults.
func FromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, xerrors.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// WriteFile persists the config as TOML.
func (c *Config) WriteFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}
