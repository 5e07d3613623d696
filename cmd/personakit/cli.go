package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/personakit/pkg/config"
	"github.com/dotsetgreg/personakit/pkg/persona"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "personakit",
		Short: "Per-user persona profiles from conversation, with speaker identity matching",
		Long: strings.TrimSpace(`personakit maintains evolving user profiles.

Conversation turns are distilled into typed profile edits, stored as
individually embedded items, and rebuilt on demand. A speaker gallery
attributes utterance embeddings to enrolled users.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newProfileCommand())
	root.AddCommand(newSpeakerCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.personakit config and workspace",
		Example: "  personakit onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return onboard()
		},
	}
}

func newChatCommand() *cobra.Command {
	var (
		user  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Record an interactive session feeding the user's profile",
		Example: strings.Join([]string{
			"  personakit chat --user alice",
			"  personakit chat --user alice --debug",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			setDebug(debug)
			if strings.TrimSpace(user) == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()
			return chatREPL(svc, user)
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id the session belongs to")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newProfileCommand() *cobra.Command {
	profileRoot := &cobra.Command{
		Use:   "profile",
		Short: "Inspect and update stored profiles",
	}

	var showUser string
	show := &cobra.Command{
		Use:     "show",
		Short:   "Print the rebuilt profile document",
		Example: "  personakit profile show --user alice",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(showUser) == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			doc, err := svc.Profile(ctx, showUser)
			if err != nil {
				return err
			}
			printDocument(doc)
			return nil
		},
	}
	show.Flags().StringVarP(&showUser, "user", "u", "", "User id")
	profileRoot.AddCommand(show)

	var (
		updateUser    string
		updateMessage string
	)
	update := &cobra.Command{
		Use:     "update",
		Short:   "Apply one message to the profile and print the result",
		Example: "  personakit profile update --user alice -m \"I love hiking, not jazz anymore\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(updateUser) == "" {
				return fmt.Errorf("--user is required")
			}
			if strings.TrimSpace(updateMessage) == "" {
				return fmt.Errorf("--message is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.InitSession(updateUser); err != nil {
				return err
			}
			if err := svc.AddTurn(updateUser, persona.Turn{Role: persona.RoleUser, Content: updateMessage}); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			doc, report, err := svc.UpdateUser(ctx, updateUser)
			if err != nil {
				return err
			}
			fmt.Printf("Applied %d op(s), skipped %d.\n", report.AppliedCount(), report.SkippedCount())
			printDocument(doc)
			return svc.EndSession(ctx, updateUser)
		},
	}
	update.Flags().StringVarP(&updateUser, "user", "u", "", "User id")
	update.Flags().StringVarP(&updateMessage, "message", "m", "", "Message to apply")
	profileRoot.AddCommand(update)

	var (
		searchUser  string
		searchQuery string
		searchTopK  int
	)
	search := &cobra.Command{
		Use:     "search",
		Short:   "Similarity-search the user's stored profile items",
		Example: "  personakit profile search --user alice --query \"outdoor activities\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(searchUser) == "" {
				return fmt.Errorf("--user is required")
			}
			if strings.TrimSpace(searchQuery) == "" {
				return fmt.Errorf("--query is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			hits, err := svc.Profiler().SearchProfile(ctx, searchUser, searchQuery, searchTopK)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, hit := range hits {
				fmt.Printf("%.3f  %s\n", hit.Score, hit.Content)
			}
			return nil
		},
	}
	search.Flags().StringVarP(&searchUser, "user", "u", "", "User id")
	search.Flags().StringVarP(&searchQuery, "query", "q", "", "Query text")
	search.Flags().IntVarP(&searchTopK, "top", "k", 8, "Number of results")
	profileRoot.AddCommand(search)

	return profileRoot
}

func newSpeakerCommand() *cobra.Command {
	speakerRoot := &cobra.Command{
		Use:   "speaker",
		Short: "Manage the speaker identity gallery",
		Long:  "Enroll, refine, and query voice-embedding identities. Vectors are JSON float arrays, inline or @file.",
	}

	enroll := &cobra.Command{
		Use:     "enroll <user> <vector>",
		Short:   "Enroll a new speaker embedding",
		Args:    cobra.ExactArgs(2),
		Example: "  personakit speaker enroll alice @alice-voice.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := readVector(args[1])
			if err != nil {
				return err
			}
			return withGallery(func(g *persona.Gallery) error {
				return g.Enroll(args[0], vec)
			})
		},
	}
	speakerRoot.AddCommand(enroll)

	update := &cobra.Command{
		Use:     "update <user> <vector>",
		Short:   "Blend a fresh embedding into an enrolled identity",
		Args:    cobra.ExactArgs(2),
		Example: "  personakit speaker update alice @alice-voice2.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := readVector(args[1])
			if err != nil {
				return err
			}
			return withGallery(func(g *persona.Gallery) error {
				return g.Update(args[0], vec)
			})
		},
	}
	speakerRoot.AddCommand(update)

	match := &cobra.Command{
		Use:     "match <vector>",
		Short:   "Attribute an utterance embedding to an enrolled speaker",
		Args:    cobra.ExactArgs(1),
		Example: "  personakit speaker match @utterance.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := readVector(args[0])
			if err != nil {
				return err
			}
			return withGallery(func(g *persona.Gallery) error {
				user, score, ok := g.Match(vec)
				if !ok {
					fmt.Printf("No match (best score %.3f).\n", score)
					return nil
				}
				fmt.Printf("%s (score %.3f)\n", user, score)
				return nil
			})
		},
	}
	speakerRoot.AddCommand(match)

	return speakerRoot
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and runtime readiness",
		Example: "  personakit status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusCmd()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  personakit version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}

// withGallery loads the persisted gallery, runs fn, and saves it back. The
// gallery file is a user-id to vector map under the workspace state dir.
func withGallery(fn func(*persona.Gallery) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := galleryPath(cfg)

	stored := map[string][]float32{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("parse gallery file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	gallery := persona.NewGallery(
		persona.WithThreshold(cfg.Speaker.MatchThreshold),
		persona.WithBlendBeta(cfg.Speaker.BlendBeta),
	)
	for userID, vec := range stored {
		if err := gallery.Enroll(userID, vec); err != nil {
			return fmt.Errorf("load gallery entry %s: %w", userID, err)
		}
	}

	if err := fn(gallery); err != nil {
		return err
	}

	out := map[string][]float32{}
	for _, userID := range gallery.Users() {
		if profile, ok := gallery.Profile(userID); ok {
			out[userID] = profile.Vector
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func galleryPath(cfg *config.Config) string {
	return filepath.Join(cfg.WorkspacePath(), "state", "speakers.json")
}
