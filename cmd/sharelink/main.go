// Command sharelink is a CLI chat client.
//
// It joins a relay (or WAMP router), lists who is online, exchanges private
// messages and file links, and shares a synthetic screen stream with the
// selected partner over WebRTC. Signaling travels over the bus; media flows
// peer to peer.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/1ureka/sharelink/internal/app"
	"github.com/1ureka/sharelink/internal/config"
	"github.com/1ureka/sharelink/internal/media"
	"github.com/1ureka/sharelink/internal/relay"
	"github.com/1ureka/sharelink/internal/signaling"
	"github.com/1ureka/sharelink/internal/transport"
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
		Use:          "sharelink",
		Short:        "Chat and share your screen with another user",
		Version:      version,
		SilenceUsage: true,
		RunE:         run,
	}
	config.BindClientFlags(cmd.Flags())
	return cmd
}

// busConn is a signaling bus the client owns and closes.
type busConn interface {
	signaling.Bus
	Close() error
}

func run(cmd *cobra.Command, args []string) error {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		util.LogError("invalid configuration: %v", err)
		return err
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("sharelink v%s", version))
	pterm.Println()

	wsURL, err := normalizeWSURL(cfg.URL)
	if err != nil {
		util.LogError("%v", err)
		return err
	}

	conn, err := dialBus(ctx, cfg.Bus, wsURL, cfg)
	if err != nil {
		util.LogError("%v", err)
		return err
	}
	defer conn.Close()

	var source media.Source = &media.Synthetic{StreamID: cfg.Username}
	if cfg.AskPermission {
		source = &media.Prompt{Source: source}
	}

	sess := app.NewSession(app.SessionConfig{
		Bus:      conn,
		Username: cfg.Username,
		Source:   source,
		NewLink:  transport.Factory(cfg.STUNServers),
		Sink:     &app.ConsoleSink{},
		Media:    media.Request{Video: cfg.Video, Audio: cfg.Audio},
		OnUsers: func(users []string) {
			if len(users) == 0 {
				util.LogInfo("nobody else is online")
				return
			}
			util.LogInfo("online: %s", strings.Join(users, ", "))
		},
		OnMessage: printMessage,
	})
	if err := sess.Start(); err != nil {
		util.LogError("failed to join: %v", err)
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			util.LogDebug("session close: %v", err)
		}
	}()

	util.StartStatsReporter(ctx, 5*time.Second)
	util.LogSuccess("connected to %s as %s", wsURL, cfg.Username)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runMenu(ctx, sess)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}

	util.LogInfo("signing off")
	return nil
}

// loadConfig reads the client configuration, asks for a username when none
// was given, then validates the result.
func loadConfig(fs *pflag.FlagSet) (config.Client, error) {
	cfg, err := config.ReadClient(fs)
	if err != nil {
		return config.Client{}, err
	}
	if strings.TrimSpace(cfg.Username) == "" {
		if cfg.Username, err = askUsername(); err != nil {
			return config.Client{}, err
		}
	}
	return cfg, cfg.Validate()
}

// dialBus connects the configured bus transport.
func dialBus(ctx context.Context, kind config.BusKind, wsURL string, cfg config.Client) (busConn, error) {
	switch kind {
	case config.BusWAMP:
		c, err := wampbus.Dial(ctx, wsURL, cfg.Realm)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		c, err := relay.Dial(ctx, wsURL, cfg.ReconnectDelay)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ---------------------------------------------------------------------------
// Interactive menu
// ---------------------------------------------------------------------------

const (
	actionPartner = "Select partner"
	actionChat    = "Send message"
	actionFile    = "Send file link"
	actionShare   = "Start sharing"
	actionStop    = "Stop sharing"
	actionStatus  = "Status"
	actionQuit    = "Quit"
)

// runMenu drives the session until the user quits or ctx is cancelled.
func runMenu(ctx context.Context, sess *app.Session) {
	for ctx.Err() == nil {
		action, err := pterm.DefaultInteractiveSelect.
			WithOptions([]string{actionPartner, actionChat, actionFile, actionShare, actionStop, actionStatus, actionQuit}).
			WithDefaultText(menuTitle(sess)).
			Show()
		if err != nil || action == actionQuit {
			return
		}
		pterm.Println()

		switch action {
		case actionPartner:
			selectPartner(sess)
		case actionChat:
			if text, err := askText("Message"); err == nil && text != "" {
				report(sess.SendChat(text))
			}
		case actionFile:
			if link, err := askText("File URL"); err == nil && link != "" {
				report(sess.SendFile(link))
			}
		case actionShare:
			report(sess.StartShare(ctx))
		case actionStop:
			sess.StopShare()
		case actionStatus:
			printStatus(sess)
		}
	}
}

func menuTitle(sess *app.Session) string {
	partner := sess.Partner()
	if partner == "" {
		partner = "nobody"
	}
	return fmt.Sprintf("%s → %s [%s]", sess.User(), partner, sess.Link().State())
}

func selectPartner(sess *app.Session) {
	users := sess.Users()
	if len(users) == 0 {
		util.LogWarning("nobody else is online")
		return
	}

	name, err := pterm.DefaultInteractiveSelect.
		WithOptions(users).
		WithDefaultText("Chat with").
		Show()
	if err != nil {
		return
	}
	pterm.Println()
	report(sess.SelectPartner(name))
}

func printStatus(sess *app.Session) {
	link := sess.Link()
	partner := link.Partner()
	if partner == "" {
		partner = "-"
	}
	pterm.DefaultTable.WithData(pterm.TableData{
		{"partner", sess.Partner()},
		{"online", strings.Join(sess.Users(), ", ")},
		{"link", link.State().String()},
		{"link peer", partner},
		{"parked candidates", fmt.Sprint(link.PendingCandidates())},
		{"messages", fmt.Sprint(len(sess.History()))},
	}).Render()
	pterm.Println()
}

func printMessage(env signaling.Envelope) {
	at := time.Now()
	if env.Timestamp != nil {
		at = env.Timestamp.Local()
	}
	prefix := pterm.FgCyan.Sprintf("[%s] %s:", at.Format("15:04"), env.Sender)

	switch env.Type {
	case signaling.KindFile:
		pterm.Println(prefix, "sent a file", pterm.Underscore.Sprint(env.Content))
	default:
		pterm.Println(prefix, env.Content)
	}
}

func report(err error) {
	if err != nil {
		util.LogWarning("%v", err)
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates a websocket URL, defaulting the scheme to ws and
// the path to the relay endpoint.
func normalizeWSURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = relay.Path
	}
	return u.String(), nil
}

// askUsername prompts until a non-empty name is entered. A failing prompt
// (no terminal, closed stdin) ends the loop.
func askUsername() (string, error) {
	for {
		name, err := askText("Username")
		if err != nil {
			return "", fmt.Errorf("username prompt: %w", err)
		}
		if name != "" {
			return name, nil
		}
		util.LogWarning("username cannot be empty")
	}
}

// askText shows a text prompt. It is a variable so tests can answer it.
var askText = func(prompt string) (string, error) {
	raw, err := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		Show()
	pterm.Println()
	return strings.TrimSpace(raw), err
}
