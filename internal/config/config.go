// Package config holds the client and server configuration types and loads
// them from defaults, an optional config file, SHARELINK_ environment
// variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BusKind selects the publish/subscribe transport.
type BusKind string

const (
	BusRelay BusKind = "relay"
	BusWAMP  BusKind = "wamp"
)

// EnvPrefix is the prefix of every environment variable read.
const EnvPrefix = "SHARELINK"

// Client stores everything the chat client needs.
type Client struct {
	Username       string        `mapstructure:"username"`
	Bus            BusKind       `mapstructure:"bus"`
	URL            string        `mapstructure:"url"`   // relay or WAMP websocket URL
	Realm          string        `mapstructure:"realm"` // WAMP only
	STUNServers    []string      `mapstructure:"stun"`
	ReconnectDelay time.Duration `mapstructure:"reconnect-delay"`
	Video          bool          `mapstructure:"video"`
	Audio          bool          `mapstructure:"audio"`
	AskPermission  bool          `mapstructure:"ask"`
	Debug          bool          `mapstructure:"debug"`
}

// Server stores the relay server settings.
type Server struct {
	Listen string  `mapstructure:"listen"`
	Mode   BusKind `mapstructure:"mode"`
	Realm  string  `mapstructure:"realm"`
	Debug  bool    `mapstructure:"debug"`
}

// DefaultClient returns the client defaults.
func DefaultClient() Client {
	return Client{
		Bus:   BusRelay,
		URL:   "ws://localhost:8080/ws",
		Realm: "sharelink",
		STUNServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
		ReconnectDelay: 5 * time.Second,
		Video:          true,
		Audio:          true,
		AskPermission:  true,
	}
}

// DefaultServer returns the server defaults.
func DefaultServer() Server {
	return Server{
		Listen: ":8080",
		Mode:   BusRelay,
		Realm:  "sharelink",
	}
}

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

// BindClientFlags registers the client flags on fs with their defaults.
func BindClientFlags(fs *pflag.FlagSet) {
	d := DefaultClient()
	fs.String("config", "", "Config file (any format viper reads)")
	fs.StringP("username", "u", d.Username, "Name to join the chat as")
	fs.String("bus", string(d.Bus), "Bus transport: relay or wamp")
	fs.String("url", d.URL, "Relay or WAMP websocket URL")
	fs.String("realm", d.Realm, "WAMP realm")
	fs.StringSlice("stun", d.STUNServers, "STUN server URLs")
	fs.Duration("reconnect-delay", d.ReconnectDelay, "Fixed delay between bus reconnect attempts")
	fs.Bool("video", d.Video, "Share the screen")
	fs.Bool("audio", d.Audio, "Share audio")
	fs.Bool("ask", d.AskPermission, "Ask before capturing")
	fs.Bool("debug", d.Debug, "Enable debug logging")
}

// BindServerFlags registers the server flags on fs with their defaults.
func BindServerFlags(fs *pflag.FlagSet) {
	d := DefaultServer()
	fs.String("config", "", "Config file (any format viper reads)")
	fs.StringP("listen", "l", d.Listen, "Listen address")
	fs.String("mode", string(d.Mode), "Server mode: relay or wamp")
	fs.String("realm", d.Realm, "WAMP realm")
	fs.Bool("debug", d.Debug, "Enable debug logging")
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// ReadClient reads a Client from fs, the environment and the config file
// named by --config without validating it, so that missing values can still
// be asked for.
func ReadClient(fs *pflag.FlagSet) (Client, error) {
	cfg := DefaultClient()
	if err := load(fs, &cfg); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// LoadClient is ReadClient followed by Validate.
func LoadClient(fs *pflag.FlagSet) (Client, error) {
	cfg, err := ReadClient(fs)
	if err != nil {
		return Client{}, err
	}
	return cfg, cfg.Validate()
}

// LoadServer reads a Server the same way as LoadClient.
func LoadServer(fs *pflag.FlagSet) (Server, error) {
	cfg := DefaultServer()
	if err := load(fs, &cfg); err != nil {
		return Server{}, err
	}
	return cfg, cfg.Validate()
}

func load(fs *pflag.FlagSet, out interface{}) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return v.Unmarshal(out)
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate rejects configurations the client cannot start with.
func (c Client) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Username) == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if err := validBus(c.Bus); err != nil {
		errs = append(errs, err)
	}
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if c.Bus == BusWAMP && c.Realm == "" {
		errs = append(errs, errors.New("realm is required for the wamp bus"))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("reconnect delay must be positive, got %v", c.ReconnectDelay))
	}
	return errors.Join(errs...)
}

// Validate rejects configurations the server cannot start with.
func (s Server) Validate() error {
	var errs []error
	if s.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if err := validBus(s.Mode); err != nil {
		errs = append(errs, err)
	}
	if s.Mode == BusWAMP && s.Realm == "" {
		errs = append(errs, errors.New("realm is required in wamp mode"))
	}
	return errors.Join(errs...)
}

func validBus(k BusKind) error {
	switch k {
	case BusRelay, BusWAMP:
		return nil
	}
	return fmt.Errorf("unknown bus %q (want %s or %s)", k, BusRelay, BusWAMP)
}
