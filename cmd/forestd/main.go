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

// forestd is the storage proof daemon: it hosts provider forests,
// answers proof generation RPCs and verifies submitted proofs.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/gorilla/mux"
	badger "github.com/ipfs/go-ds-badger2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/storagehub/go-forest/config"
)

var log = logging.Logger("forestd")

var buildVersion = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "forestd",
		Usage:   "storage proof daemon",
		Version: buildVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Usage:   "daemon repo directory",
				Value:   "~/.forestd",
				EnvVars: []string{"FORESTD_PATH"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(cctx *cli.Context) error {
			level := logging.LevelInfo
			if cctx.Bool("debug") {
				level = logging.LevelDebug
			}
			logging.SetAllLoggers(level)
			return nil
		},
		Commands: []*cli.Command{
			runCmd,
			fixturesCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}

func repoPath(cctx *cli.Context) (string, error) {
	path, err := homedir.Expand(cctx.String("repo"))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", err
	}
	return path, nil
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "start the daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "override the configured RPC listen address",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}
		cfg, err := config.FromFile(filepath.Join(repo, "config.toml"))
		if err != nil {
			return err
		}
		listen := cfg.API.ListenAddress
		if cctx.IsSet("listen") {
			listen = cctx.String("listen")
		}

		ds, err := badger.NewDatastore(filepath.Join(repo, "datastore"), &badger.DefaultOptions)
		if err != nil {
			return xerrors.Errorf("opening datastore: %w", err)
		}
		defer ds.Close()

		n, err := newNode(ctx, ds, cfg.SchedulerConfig())
		if err != nil {
			return err
		}

		rpcServer := jsonrpc.NewServer()
		rpcServer.Register("StorageHub", n)

		router := mux.NewRouter()
		router.Handle("/rpc/v0", rpcServer)

		srv := &http.Server{
			Addr:    listen,
			Handler: router,
		}

		go func() {
			<-ctx.Done()
			log.Info("shutting down")
			_ = srv.Shutdown(context.Background())
		}()

		log.Infow("forestd listening", "addr", listen, "session", n.session)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}
