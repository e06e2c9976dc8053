// ABOUTME: Entry point for the Guessong terminal client
// ABOUTME: Parses flags, finds a server and runs the lobby session
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AleixFerre/guessong-client/internal/app"
	"github.com/AleixFerre/guessong-client/internal/catalog"
	"github.com/AleixFerre/guessong-client/internal/discovery"
	"github.com/AleixFerre/guessong-client/internal/game"
	"github.com/AleixFerre/guessong-client/internal/notify"
	"github.com/AleixFerre/guessong-client/internal/prefs"
	"github.com/AleixFerre/guessong-client/internal/ui"
)

var (
	serverURL  = flag.String("server", "", "Server base URL (skip mDNS discovery)")
	username   = flag.String("username", "", "Display name")
	joinCode   = flag.String("join", "", "Lobby code to join (default: create a lobby)")
	library    = flag.String("library", "anime", "Track library for a new lobby")
	mode       = flag.String("mode", game.ModeBuzz, "Game mode for a new lobby")
	duration   = flag.Int("duration", 30, "Round duration in seconds for a new lobby")
	maxPlayers = flag.Int("max-players", 8, "Max players for a new lobby")
	noAudio    = flag.Bool("no-audio", false, "Disable local clip playback")
	logFile    = flag.String("log-file", "guessong.log", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		// Optional; only interesting when a .env actually exists.
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	// The TUI owns the terminal, so logs go to the file only.
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	name := firstNonEmpty(*username, os.Getenv("GUESSONG_USERNAME"))
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "player"
		}
		name = hostname
	}

	server := firstNonEmpty(*serverURL, os.Getenv("GUESSONG_SERVER"))
	if server == "" {
		server = discoverServer()
	}

	prefsPath, err := prefs.DefaultPath()
	if err != nil {
		log.Warn().Err(err).Msg("no config dir, preferences will not persist")
	}
	stored := prefs.Load(prefsPath)

	controls := ui.NewControls()
	tuiProg, err := ui.Run(controls, stored.Volume, stored.Muted)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start TUI")
	}

	session := app.New(app.Config{
		ServerURL: server,
		Username:  name,
		NoAudio:   *noAudio,
		OnSnapshot: func(snap game.Snapshot) {
			tuiProg.Send(ui.SnapshotMsg(snap))
		},
		OnNotices: func(notices []notify.Notice) {
			tuiProg.Send(ui.NoticesMsg(notices))
		},
	}, clockwork.NewRealClock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session.Playback().SetVolume(stored.Volume)
	session.Playback().SetMuted(stored.Muted)

	session.Start(ctx)
	go connStatusLoop(ctx, session, tuiProg)
	go handleControls(ctx, session, controls, prefsPath)
	go enterLobby(ctx, session)

	go func() {
		if _, err := tuiProg.Run(); err != nil {
			log.Error().Err(err).Msg("TUI stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-controls.Quit:
		log.Info().Msg("quit from TUI")
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	}

	tuiProg.Quit()
	session.Close()
}

// discoverServer browses the LAN for a Guessong server.
func discoverServer() string {
	log.Info().Msg("no server configured, starting mDNS discovery")
	browser := discovery.NewBrowser()
	browser.Browse()
	defer browser.Stop()

	select {
	case server := <-browser.Servers():
		return fmt.Sprintf("http://%s:%d", server.Host, server.Port)
	case <-time.After(10 * time.Second):
		log.Fatal().Msg("no server found after 10 seconds")
		return ""
	}
}

// enterLobby creates or joins a lobby once at startup.
func enterLobby(ctx context.Context, session *app.Session) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var err error
	if *joinCode != "" {
		err = session.JoinLobby(ctx, *joinCode)
	} else {
		err = session.CreateLobby(ctx, catalog.CreateLobbyRequest{
			Mode:          *mode,
			Library:       *library,
			RoundDuration: *duration,
			MaxPlayers:    *maxPlayers,
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("could not enter lobby")
		session.Notices().PushKind("could not enter lobby", notify.KindError)
	}
}

// connStatusLoop refreshes the TUI clock line twice a second.
func connStatusLoop(ctx context.Context, session *app.Session, tuiProg *tea.Program) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs := session.Transport().ClockSync()
			tuiProg.Send(ui.ConnMsg{
				State:    session.Transport().State(),
				OffsetMs: cs.OffsetMs(),
				RTTMs:    cs.RTTMs(),
			})
		}
	}
}

// handleControls maps TUI actions onto engine operations.
func handleControls(ctx context.Context, session *app.Session, controls *ui.Controls, prefsPath string) {
	engine := session.Engine()
	for {
		select {
		case <-ctx.Done():
			return
		case <-controls.Buzz:
			logIfErr(engine.Buzz(), "buzz")
		case text := <-controls.Guess:
			logIfErr(engine.SubmitGuess(text), "guess")
		case <-controls.Start:
			logIfErr(engine.StartGame(), "start game")
		case <-controls.Skip:
			logIfErr(engine.RequestSkip(), "skip")
		case <-controls.Rematch:
			logIfErr(engine.RequestRematch(), "rematch")
		case vol := <-controls.Volume:
			session.Playback().SetVolume(vol.Volume)
			session.Playback().SetMuted(vol.Muted)
			if prefsPath != "" {
				logIfErr(prefs.Save(prefsPath, prefs.Prefs{Volume: vol.Volume, Muted: vol.Muted}), "save preferences")
			}
		}
	}
}

func logIfErr(err error, action string) {
	if err != nil {
		log.Warn().Err(err).Str("action", action).Msg("action rejected")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
