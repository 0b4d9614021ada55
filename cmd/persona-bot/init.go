// ABOUTME: Interactive config writer for persona-bot
// ABOUTME: Prompts for Matrix and OpenAI settings and writes a YAML config

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/2389/persona-bot/internal/config"
)

// initAnswers are the values gathered by runInit.
type initAnswers struct {
	Homeserver  string
	UserID      string
	AccessToken string
	Username    string
	Password    string
	RecoveryKey string
	APIKey      string
	DBPath      string
	HTTPAddr    string
}

func runInit() error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println("    Interactive Setup")
	fmt.Println("    -----------------")
	fmt.Println()

	configPath := getConfigPath()
	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil {
		yellow.Printf("    Config already exists at %s\n", configPath)
		if strings.ToLower(prompt(reader, "Overwrite? [y/N]", "")) != "y" {
			fmt.Println("    Aborted.")
			return nil
		}
		fmt.Println()
	}

	var a initAnswers
	a.Homeserver = prompt(reader, "Matrix homeserver URL [https://matrix.org]", "https://matrix.org")
	a.UserID = prompt(reader, "Bot user ID (e.g. @persona:matrix.org)", "")
	a.AccessToken = prompt(reader, "Access token (leave empty to use a password)", "")
	if a.AccessToken == "" {
		a.Username = prompt(reader, "Matrix username", "")
		a.Password = prompt(reader, "Matrix password", "")
	}
	a.RecoveryKey = prompt(reader, "Matrix recovery key (optional, for E2EE)", "")
	a.APIKey = prompt(reader, "OpenAI API key [${OPENAI_API_KEY}]", "${OPENAI_API_KEY}")

	defaultDB := filepath.Join(getDataPath(), "persona-bot.db")
	a.DBPath = prompt(reader, fmt.Sprintf("Database path [%s]", defaultDB), defaultDB)
	a.HTTPAddr = prompt(reader, "Health endpoint address (optional, e.g. 127.0.0.1:8080)", "")

	out, err := renderConfig(a)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// May contain credentials
	if err := os.WriteFile(configPath, out, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println()
	green.Printf("    ✓ Config written to %s\n", configPath)
	fmt.Println()
	fmt.Println("    Next steps:")
	fmt.Println("    1. Put OPENAI_API_KEY in the environment or a .env file")
	fmt.Println("    2. Run: persona-bot")
	fmt.Println()

	return nil
}

// prompt prints label and returns the trimmed answer, or def when empty.
func prompt(r *bufio.Reader, label, def string) string {
	color.New(color.FgGreen).Print("    ▶ ")
	fmt.Print(label + ": ")
	answer, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return def
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def
	}
	return answer
}

// renderConfig builds the YAML config for the answers. Only settings that
// differ from the defaults are written.
func renderConfig(a initAnswers) ([]byte, error) {
	type matrixSection struct {
		Homeserver      string `yaml:"homeserver"`
		UserID          string `yaml:"user_id"`
		AccessToken     string `yaml:"access_token,omitempty"`
		Username        string `yaml:"username,omitempty"`
		Password        string `yaml:"password,omitempty"`
		RecoveryKey     string `yaml:"recovery_key,omitempty"`
		TypingIndicator bool   `yaml:"typing_indicator"`
	}
	type aiSection struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	}
	type serverSection struct {
		HTTPAddr string `yaml:"http_addr"`
	}
	doc := struct {
		Matrix   matrixSection         `yaml:"matrix"`
		AI       aiSection             `yaml:"ai"`
		Database config.DatabaseConfig `yaml:"database"`
		Server   *serverSection        `yaml:"server,omitempty"`
		Logging  config.LoggingConfig  `yaml:"logging"`
	}{
		Matrix: matrixSection{
			Homeserver:      a.Homeserver,
			UserID:          a.UserID,
			AccessToken:     a.AccessToken,
			Username:        a.Username,
			Password:        a.Password,
			RecoveryKey:     a.RecoveryKey,
			TypingIndicator: true,
		},
		AI:       aiSection{APIKey: a.APIKey, Model: config.DefaultModel},
		Database: config.DatabaseConfig{Path: a.DBPath},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
	if a.HTTPAddr != "" {
		doc.Server = &serverSection{HTTPAddr: a.HTTPAddr}
	}

	body, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	header := "# persona-bot configuration\n# Generated by persona-bot init\n\n"
	return append([]byte(header), body...), nil
}
