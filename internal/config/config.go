// Package config loads the CLI configuration from defaults, an optional
// config file and RTCALL_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Role represents the user's chosen role.
type Role string

const (
	RoleCall   Role = "call"   // dials the signaling server and sends the offer
	RoleAnswer Role = "answer" // dials the signaling server and answers
	RoleRelay  Role = "relay"  // runs the loopback signaling relay
)

// EnvPrefix is prepended to every key when reading the environment, for
// example RTCALL_SIGNALURL.
const EnvPrefix = "RTCALL"

// Config stores every parameter the CLI needs. Flags override it.
type Config struct {
	Role          Role
	SignalURL     string   // call/answer: WebSocket URL of the signaling server
	RelayAddr     string   // relay: listen address
	RelayPIN      string   // relay: required PIN; empty generates one
	ICEServers    []string // STUN/TURN URLs
	LogLevel      string
	DialTimeout   time.Duration
	CloseTimeout  time.Duration
	Replay        int // message stream replay window
	StatsInterval time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("role", "")
	v.SetDefault("signalurl", "")
	v.SetDefault("relayaddr", "127.0.0.1:0")
	v.SetDefault("relaypin", "")
	v.SetDefault("iceservers", []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"})
	v.SetDefault("loglevel", "info")
	v.SetDefault("dialtimeout", 10*time.Second)
	v.SetDefault("closetimeout", 5*time.Second)
	v.SetDefault("replay", 1)
	v.SetDefault("statsinterval", 5*time.Second)
}

// Load reads the configuration. An empty path skips the config file; a
// path that cannot be read is an error. Environment variables take
// precedence over the file. A list in the environment is space-separated.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Role:          Role(strings.ToLower(v.GetString("role"))),
		SignalURL:     v.GetString("signalurl"),
		RelayAddr:     v.GetString("relayaddr"),
		RelayPIN:      v.GetString("relaypin"),
		ICEServers:    v.GetStringSlice("iceservers"),
		LogLevel:      v.GetString("loglevel"),
		DialTimeout:   v.GetDuration("dialtimeout"),
		CloseTimeout:  v.GetDuration("closetimeout"),
		Replay:        v.GetInt("replay"),
		StatsInterval: v.GetDuration("statsinterval"),
	}
	return cfg, nil
}

// Validate checks the fields the chosen role depends on. An empty role is
// valid: the CLI falls back to interactive prompts.
func (c Config) Validate() error {
	switch c.Role {
	case "":
		return nil
	case RoleCall, RoleAnswer:
		if c.SignalURL == "" {
			return fmt.Errorf("missing signaling URL for role %s", c.Role)
		}
	case RoleRelay:
		if c.RelayAddr == "" {
			return fmt.Errorf("missing relay address")
		}
	default:
		return fmt.Errorf("invalid role %q: must be 'call', 'answer' or 'relay'", c.Role)
	}

	if c.DialTimeout < 0 || c.CloseTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}
