// Command rtcall is the CLI entry point.
//
// This tool places a one-to-one WebRTC audio/video call. Both sides meet on a
// WebSocket signaling server (the built-in relay role serves one for local
// runs), exchange SDP and ICE candidates, and then stream media peer to peer.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -url, -listen, -pin) and an optional config file (-config).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/rtcall/internal/app"
	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/media"
	"github.com/1ureka/rtcall/internal/rtc"
	"github.com/1ureka/rtcall/internal/signaling"
	"github.com/1ureka/rtcall/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	configPath := flag.String("config", "", "Path to a config file (yaml, json or toml)")
	role := flag.String("role", "", "Role: call, answer or relay")
	urlFlag := flag.String("url", "", "Signaling WebSocket URL (call/answer)")
	listenFlag := flag.String("listen", "", "Relay listen address, e.g. :8080 (relay only)")
	pinFlag := flag.String("pin", "", "Relay PIN (relay only, random if empty)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	// Flags override the config file and environment.
	if *role != "" {
		cfg.Role = config.Role(strings.ToLower(*role))
	}
	if *urlFlag != "" {
		cfg.SignalURL = *urlFlag
	}
	if *listenFlag != "" {
		cfg.RelayAddr = *listenFlag
	}
	if *pinFlag != "" {
		cfg.RelayPIN = *pinFlag
	}

	if err := util.SetLevel(cfg.LogLevel); err != nil {
		util.LogWarning("%v", err)
	}
	if *debugMode {
		util.EnableDebug()
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	pterm.Info.Println(fmt.Sprintf("rtcall — v%s", version))
	pterm.Println()

	switch cfg.Role {
	case "":
		// No role → interactive mode.
		runInteractive(ctx, cfg)

	case config.RoleCall, config.RoleAnswer:
		wsURL, err := normalizeWSURL(cfg.SignalURL)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg.SignalURL = wsURL
		runCall(ctx, cfg)

	case config.RoleRelay:
		runRelay(ctx, cfg)
	}

	util.LogInfo("successfully closed call")
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive prompts for the role and URL when no role is configured.
func runInteractive(ctx context.Context, cfg config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Call   — Start a call",
			"Answer — Wait for a call",
			"Relay  — Run a local signaling relay",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(role, "Relay"):
		cfg.Role = config.RoleRelay
		runRelay(ctx, cfg)
	case strings.HasPrefix(role, "Answer"):
		cfg.Role = config.RoleAnswer
		cfg.SignalURL = askURL()
		runCall(ctx, cfg)
	default:
		cfg.Role = config.RoleCall
		cfg.SignalURL = askURL()
		runCall(ctx, cfg)
	}
}

// runCall executes one call until the remote side hangs up or Ctrl+C.
func runCall(ctx context.Context, cfg config.Config) {
	local, err := media.NewBuilder(media.SyntheticDevice, &media.SyntheticCapturer{}).Build()
	if err != nil {
		util.LogError("failed to start local media: %v", err)
		os.Exit(1)
	}

	call, err := app.NewCall(ctx, app.Options{
		Role:      app.Role(cfg.Role),
		SignalURL: cfg.SignalURL,
		Signaling: signaling.ClientOptions{
			Options: signaling.Options{
				DialTimeout:  cfg.DialTimeout,
				CloseTimeout: cfg.CloseTimeout,
			},
			Replay: cfg.Replay,
		},
		Peer:  rtc.Config{ICEServers: cfg.ICEServers},
		Local: local,
	})
	if err != nil {
		local.Close()
		util.LogError("failed to set up call: %v", err)
		os.Exit(1)
	}
	defer call.Close()

	util.StartStatsReporter(ctx, cfg.StatsInterval)
	util.LogInfo("local media %dx%d@%d, waiting for the remote peer...",
		local.Format.Width, local.Format.Height, local.Format.FPS)

	track, err := call.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		util.LogError("call failed: %v", err)
		call.Close()
		os.Exit(1)
	}

	util.LogSuccess("call established — receiving remote video %s", track.ID())

	// Drain every remote track, audio included.
	tracks := call.Coordinator().RemoteTracks()
	defer tracks.Cancel()
	for {
		select {
		case remote, ok := <-tracks.C():
			if !ok {
				return
			}
			go rtc.Drain(ctx, remote)
		case <-ctx.Done():
			return
		}
	}
}

// runRelay serves the loopback signaling relay until Ctrl+C.
func runRelay(ctx context.Context, cfg config.Config) {
	pin := cfg.RelayPIN
	if pin == "" {
		pin = signaling.GeneratePIN(4)
	}

	relay := signaling.NewRelay(pin)
	addr, err := relay.Start(cfg.RelayAddr)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	defer relay.Close()

	util.StartStatsReporter(ctx, cfg.StatsInterval)
	util.LogSuccess("relay listening on ws://%s/ws?pin=%s", addr, pin)
	util.LogInfo("both peers must join the same ?room=<name> (default \"default\")")

	<-ctx.Done()
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates and normalizes a raw WebSocket URL string. A
// missing scheme becomes wss, a missing path becomes /ws, and the query
// (room, pin) is kept.
func normalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	u.Fragment = ""
	return u.String(), nil
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Signaling URL (e.g. ws://127.0.0.1:8080/ws?pin=1234&room=demo)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
