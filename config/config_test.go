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

package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storagehub/go-forest/challenge"
)

func TestDefaultsMatchScheduler(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, challenge.DefaultConfig(), cfg.SchedulerConfig())
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := FromFile(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig()
	cfg.API.ListenAddress = "0.0.0.0:1234"
	cfg.API.Timeout = Duration(90 * time.Second)
	cfg.Challenge.ChallengeTolerance = 7
	require.NoError(t, cfg.WriteFile(path))

	loaded, err := FromFile(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestReaderLayersOverDefaults(t *testing.T) {
	cfg, err := FromReader(strings.NewReader(`
[API]
ListenAddress = "127.0.0.1:9999"
`))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.API.ListenAddress)

	// everything else keeps its default
	require.Equal(t, DefaultConfig().Challenge, cfg.Challenge)
	require.Equal(t, DefaultConfig().API.Timeout, cfg.API.Timeout)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	require.Equal(t, Duration(90*time.Second), d)

	out, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "1m30s", string(out))

	require.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
