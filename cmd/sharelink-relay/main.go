// Command sharelink-relay is the signaling server for sharelink clients.
//
// In relay mode it serves a websocket publish/subscribe hub; in wamp mode an
// embedded WAMP router. Either way it keeps the list of online users and
// broadcasts it on every change. It never sees media.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/sharelink/internal/config"
	"github.com/1ureka/sharelink/internal/relay"
	"github.com/1ureka/sharelink/internal/util"
	"github.com/1ureka/sharelink/internal/wampbus"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sharelink-relay",
		Short:        "Relay presence, chat and signaling messages between sharelink clients",
		Version:      version,
		SilenceUsage: true,
		RunE:         run,
	}
	config.BindServerFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.LoadServer(cmd.Flags())
	if err != nil {
		util.LogError("invalid configuration: %v", err)
		return err
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("sharelink-relay v%s", version))
	pterm.Println()

	handler, users, cleanup, err := newHandler(cfg)
	if err != nil {
		util.LogError("%v", err)
		return err
	}
	defer cleanup()

	server := relay.NewServer(cfg.Listen, handler)
	addr, err := server.Start()
	if err != nil {
		util.LogError("%v", err)
		return err
	}
	util.LogSuccess("%s server listening on ws://%s%s", cfg.Mode, addr, relay.Path)

	go reportUsers(ctx, users)

	select {
	case <-ctx.Done():
	case <-server.Done():
		return server.Err()
	}
	if err := server.Close(5 * time.Second); err != nil {
		util.LogWarning("shutdown: %v", err)
	}
	util.LogInfo("server stopped")
	return nil
}

// newHandler builds the websocket endpoint for cfg.Mode, a view of the users
// online and a cleanup function.
func newHandler(cfg config.Server) (http.Handler, func() []string, func(), error) {
	switch cfg.Mode {
	case config.BusWAMP:
		srv, err := wampbus.NewServer(cfg.Realm)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to start WAMP router: %w", err)
		}
		return srv.Handler(), srv.Users, srv.Close, nil
	default:
		hub := relay.NewHub()
		return hub, hub.Users, func() {}, nil
	}
}

// reportUsers logs the online count whenever it changes.
func reportUsers(ctx context.Context, users func() []string) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-ticker.C:
			if n := len(users()); n != last {
				util.LogInfo("%d user(s) online", n)
				last = n
			}
		case <-ctx.Done():
			return
		}
	}
}
