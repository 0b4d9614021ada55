// ABOUTME: Entry point for persona-bot
// ABOUTME: Wires the store, AI gateway and conversation bot to a Matrix account

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/persona-bot/internal/ai"
	"github.com/2389/persona-bot/internal/config"
	"github.com/2389/persona-bot/internal/conversation"
	"github.com/2389/persona-bot/internal/health"
	"github.com/2389/persona-bot/internal/matrix"
	"github.com/2389/persona-bot/internal/media"
	"github.com/2389/persona-bot/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
                                                  _           _
  _ __   ___ _ __ ___  ___  _ __   __ _       | |__   ___ | |_
 | '_ \ / _ \ '__/ __|/ _ \| '_ \ / _' |_____| '_ \ / _ \| __|
 | |_) |  __/ |  \__ \ (_) | | | | (_| |_____| |_) | (_) | |_
 | .__/ \___|_|  |___/\___/|_| |_|\__,_|     |_.__/ \___/ \__|
 |_|
`

// getConfigPath returns the path to the bot config file.
// Priority: PERSONA_BOT_CONFIG env var > XDG_CONFIG_HOME/persona-bot/config.yaml > ~/.config/persona-bot/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PERSONA_BOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "persona-bot", "config.yaml")
}

// getDataPath returns the path to the persona-bot data directory.
// Priority: XDG_DATA_HOME/persona-bot > ~/.local/share/persona-bot
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "persona-bot")
}

func usage() {
	fmt.Println("Usage: persona-bot [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Run the bot (default)")
	fmt.Println("  init      Create a new config file interactively")
	fmt.Println("  health    Check a running bot's readiness endpoint")
	fmt.Println("  version   Print the version")
}

func main() {
	// .env values feed ${VAR} expansion in the config
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.UserID)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Model:      %s", cfg.AI.Model)
	if cfg.AI.Mock {
		yellow.Print(" [mock]")
	}
	fmt.Println()
	if cfg.Server.HTTPAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	}
	if cfg.Matrix.RecoveryKey != "" {
		green.Print("    ▶ ")
		fmt.Println("Encryption: enabled")
	}
	fmt.Println()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	files, err := media.NewFileStore(cfg.Media.Dir)
	if err != nil {
		return fmt.Errorf("preparing media directory: %w", err)
	}

	gateway := ai.New(cfg.AI, logger)
	bot := conversation.New(st, gateway, files, conversation.Options{
		HistoryTurns: cfg.Chat.HistoryTurns,
	}, logger)

	bridge, err := matrix.NewBridge(cfg.Matrix, bot, files, logger)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Login is required before crypto setup
	if err := bridge.Login(ctx); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}

	if cfg.Matrix.RecoveryKey != "" {
		cryptoMgr, err := SetupCrypto(ctx, bridge.Client(), bridge.UserID(), cfg.Matrix.RecoveryKey, filepath.Dir(cfg.Database.Path), logger)
		if err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		defer cryptoMgr.Close()
	} else {
		logger.Info("encryption disabled (no recovery key)")
	}

	logger.Info("starting persona-bot",
		"config", configPath,
		"user_id", bridge.UserID(),
		"http_addr", cfg.Server.HTTPAddr,
	)

	runners := []func(context.Context) error{bridge.Run}
	if cfg.Server.HTTPAddr != "" {
		hs := health.New(cfg.Server.HTTPAddr, logger)
		hs.AddCheck("store", st.Ping)
		hs.AddCheck("matrix", bridge.Ready)
		runners = append(runners, hs.Run)
	}

	return runAll(ctx, runners...)
}

// runAll runs every fn until ctx is cancelled or one of them fails, then
// cancels the rest and waits for them.
func runAll(ctx context.Context, fns ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, fn := range fns {
		wg.Add(1)
		go func(fn func(context.Context) error) {
			defer wg.Done()
			err := fn(ctx)
			if err != nil {
				once.Do(func() { firstErr = err })
			}
			cancel()
		}(fn)
	}
	wg.Wait()
	return firstErr
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is not set in %s", configPath)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	fmt.Print(string(body))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
