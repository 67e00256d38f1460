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

package main

import (
	"net/http"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/urfave/cli/v2"

	"github.com/storagehub/go-forest/api"
	"github.com/storagehub/go-forest/challenge"
	"github.com/storagehub/go-forest/fixtures"
)

var fixturesCmd = &cli.Command{
	Name:  "fixtures",
	Usage: "generate the pallet benchmark proof fixtures",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "output",
			Usage: "path of the generated Rust source file",
			Value: "benchmark_proofs.rs",
		},
		&cli.StringFlag{
			Name:  "template",
			Usage: "benchmark_proofs_template.rs to fill in (built-in when empty)",
		},
		&cli.IntFlag{
			Name:  "leaves",
			Usage: "worst-case forest size",
			Value: 40,
		},
		&cli.StringFlag{
			Name:  "connect",
			Usage: "drive a running daemon instead of an in-process node",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		params := fixtures.DefaultParams()
		params.Leaves = cctx.Int("leaves")
		params.Debug = cctx.Bool("debug")

		var client api.StorageHub
		if addr := cctx.String("connect"); addr != "" {
			remote, closer, err := api.NewStorageHubRPC(ctx, addr, http.Header{})
			if err != nil {
				return err
			}
			defer closer()
			client = remote
		} else {
			// an in-process node over a throwaway datastore is enough;
			// fixtures never need to survive the run
			ds := dssync.MutexWrap(datastore.NewMapDatastore())
			n, err := newNode(ctx, ds, challenge.DefaultConfig())
			if err != nil {
				return err
			}
			client = n
		}

		fx, err := fixtures.Generate(ctx, client, params)
		if err != nil {
			return err
		}
		if err := fixtures.WriteRustFixture(cctx.String("output"), cctx.String("template"), fx); err != nil {
			return err
		}
		log.Infow("wrote benchmark fixtures", "output", cctx.String("output"), "root", fx.Root)
		return nil
	},
}
