package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/dotsetgreg/personakit/pkg/config"
	"github.com/dotsetgreg/personakit/pkg/embedding"
	"github.com/dotsetgreg/personakit/pkg/extractor"
	"github.com/dotsetgreg/personakit/pkg/logger"
	"github.com/dotsetgreg/personakit/pkg/persona"
	"github.com/dotsetgreg/personakit/pkg/store"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "personakit"

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	if buildTime != "" {
		fmt.Printf("  built:  %s\n", buildTime)
	}
	if goVersion != "" {
		fmt.Printf("  go:     %s\n", goVersion)
	} else {
		fmt.Printf("  go:     %s\n", runtime.Version())
	}
}

func getConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".personakit", "config.json")
	}
	return filepath.Join(home, ".personakit", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}

// buildEmbedder wires the configured embedding provider.
func buildEmbedder(cfg *config.Config) embedding.Embedder {
	switch strings.ToLower(cfg.Embedding.Provider) {
	case "openai":
		return embedding.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	default:
		return embedding.NewByName(cfg.Embedding.Model)
	}
}

// buildExtractor wires the configured delta extractor.
func buildExtractor(cfg *config.Config) persona.DeltaExtractor {
	switch strings.ToLower(cfg.Extractor.Provider) {
	case "openai":
		return extractor.NewOpenAI(cfg.Extractor.APIKey, cfg.Extractor.Model)
	default:
		return extractor.NewHeuristic()
	}
}

// buildService assembles the full stack from config. Caller closes it.
func buildService(cfg *config.Config) (*persona.Service, error) {
	embedder := buildEmbedder(cfg)
	st, err := store.NewSQLiteStore(cfg.DBPath(), embedder)
	if err != nil {
		return nil, err
	}
	svc, err := persona.NewService(persona.Config{
		Collection:     cfg.Profile.Collection,
		VectorDim:      embedder.Dims(),
		FlushSchedule:  cfg.Profile.FlushSchedule,
		MaxCachedTurns: cfg.Profile.MaxCachedTurns,
		ExtractTimeout: time.Duration(cfg.Profile.ExtractTimeoutSeconds) * time.Second,
		MatchThreshold: cfg.Speaker.MatchThreshold,
		BlendBeta:      cfg.Speaker.BlendBeta,
	}, st, buildExtractor(cfg))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return svc, nil
}

func onboard() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.WorkspacePath(), "state"), 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	fmt.Printf("%s is ready!\n", appName)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. (Optional) Set extractor.provider to \"openai\" and add an API key in", configPath)
	fmt.Println("  2. Record a conversation: personakit chat --user alice")
	fmt.Println("  3. Inspect the profile: personakit profile show --user alice")
	return nil
}

func statusCmd() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n\n", appName, formatVersion())
	fmt.Printf("Config:     %s\n", getConfigPath())
	fmt.Printf("Workspace:  %s\n", cfg.WorkspacePath())
	fmt.Printf("Database:   %s\n", cfg.DBPath())
	fmt.Printf("Embedder:   %s (%s, %d dims)\n", cfg.Embedding.Provider, cfg.Embedding.Model, buildEmbedder(cfg).Dims())
	fmt.Printf("Extractor:  %s\n", cfg.Extractor.Provider)
	fmt.Printf("Collection: %s\n", cfg.Profile.Collection)
	fmt.Printf("Flush:      %s\n", cfg.Profile.FlushSchedule)
	if _, err := os.Stat(cfg.DBPath()); err == nil {
		fmt.Println("\nDatabase present.")
	} else {
		fmt.Println("\nDatabase not created yet; run a chat session first.")
	}
	return nil
}

// chatREPL records conversation turns for one user and flushes them into the
// profile on /flush and on exit.
func chatREPL(svc *persona.Service, userID string) error {
	if err := svc.InitSession(userID); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := svc.EndSession(ctx, userID); err != nil {
			fmt.Printf("Warning: final flush failed: %v\n", err)
		}
	}()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s %s> ", appName, userID),
		HistoryFile:     filepath.Join(os.TempDir(), ".personakit_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("Recording turns. /flush applies pending turns, /profile prints the profile, exit quits.")

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		switch input {
		case "exit", "quit":
			fmt.Println("Goodbye!")
			return nil
		case "/flush":
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			doc, report, err := svc.UpdateUser(ctx, userID)
			cancel()
			if err != nil {
				fmt.Printf("Flush failed: %v\n", err)
				continue
			}
			fmt.Printf("Applied %d op(s), skipped %d.\n", report.AppliedCount(), report.SkippedCount())
			printDocument(doc)
			continue
		case "/profile":
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			doc, err := svc.Profile(ctx, userID)
			cancel()
			if err != nil {
				fmt.Printf("Load failed: %v\n", err)
				continue
			}
			printDocument(doc)
			continue
		}

		if err := svc.AddTurn(userID, persona.Turn{Role: persona.RoleUser, Content: input}); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func printDocument(doc persona.Document) {
	if len(doc) == 0 {
		fmt.Println("(empty profile)")
		return
	}
	raw, err := json.MarshalIndent(map[string]interface{}(doc), "", "  ")
	if err != nil {
		fmt.Println(doc.JSON())
		return
	}
	fmt.Println(string(raw))
}

// readVector parses a JSON float array from the argument, or from a file when
// the argument starts with '@'.
func readVector(arg string) ([]float32, error) {
	raw := arg
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("read vector file: %w", err)
		}
		raw = string(data)
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	return vec, nil
}

func setDebug(debug bool) {
	if debug {
		logger.SetLevel("debug")
		fmt.Println("Debug mode enabled")
	}
}
