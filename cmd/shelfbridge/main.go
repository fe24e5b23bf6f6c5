// Command shelfbridge syncs Audiobookshelf reading progress into
// Hardcover for one or more configured users.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rohit-purandare/shelfbridge/internal/app"
	"github.com/rohit-purandare/shelfbridge/internal/config"
	"github.com/rohit-purandare/shelfbridge/internal/logger"
	"github.com/rohit-purandare/shelfbridge/internal/syncengine"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func init() {
	logger.Setup(logger.Config{
		Level:      "info",
		Format:     logger.FormatJSON,
		TimeFormat: time.RFC3339,
	})
}

func main() {
	cliApp := &cli.App{
		Name:    "shelfbridge",
		Usage:   "Sync Audiobookshelf reading progress into Hardcover",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "config.yaml",
			},
		},
		Commands: []*cli.Command{
			syncCommand(),
			startCommand(),
			validateCommand(),
			debugCommand(),
			cacheCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Get().Error("fatal error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func loadApp(c *cli.Context) (*app.App, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return app.New(cfg, logger.Get())
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run a single sync pass",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "Only sync this user ID"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Do not write changes to Hardcover"},
			&cli.BoolFlag{Name: "force", Usage: "Ignore cached progress and resync every book"},
		},
		Action: func(c *cli.Context) error {
			a, err := loadApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			userID := c.String("user")
			dryRun := c.Bool("dry-run")
			force := c.Bool("force")

			if userID != "" {
				results, err := a.SyncUser(ctx, userID, force, dryRun)
				if err != nil {
					return err
				}
				printResults(map[string][]string{userID: summarize(results)})
				return nil
			}

			allResults, err := a.SyncAllUsers(ctx, force, dryRun)
			if err != nil {
				return err
			}
			summary := make(map[string][]string, len(allResults))
			for user, results := range allResults {
				summary[user] = summarize(results)
			}
			printResults(summary)
			return nil
		},
	}
}

// summarize renders each result as "title: status (reason)" for the
// CLI's per-book output.
func summarize(results []syncengine.Result) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		line := fmt.Sprintf("%s: %s", r.Title, r.Status)
		if r.Reason != "" {
			line += fmt.Sprintf(" (%s)", r.Reason)
		}
		if r.Err != nil {
			line += fmt.Sprintf(" error=%v", r.Err)
		}
		lines = append(lines, line)
	}
	return lines
}

func printResults(summary map[string][]string) {
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
}

func startCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Run the scheduler loop, syncing every configured user on its cron schedule",
		Action: func(c *cli.Context) error {
			a, err := loadApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			a.RecoverSessions(ctx)

			for _, u := range a.Config.Users {
				userID := u.ID
				err := a.Scheduler.AddUser(ctx, userID, a.Config.SyncSchedule, func(ctx context.Context, userID string) {
					if _, err := a.SyncUser(ctx, userID, false, false); err != nil {
						logger.Get().Error("scheduled sync failed", map[string]interface{}{"user": userID, "error": err.Error()})
					}
				})
				if err != nil {
					return fmt.Errorf("scheduling user %s: %w", userID, err)
				}
			}

			a.Scheduler.Start()
			logger.Get().Info("scheduler started", map[string]interface{}{"users": len(a.Config.Users), "schedule": a.Config.SyncSchedule})

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			a.Scheduler.Stop(stopCtx)
			return nil
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate the configuration file without syncing",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Printf("configuration valid: %d user(s) configured\n", len(cfg.Users))
			return nil
		},
	}
}

func debugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Dump a user's raw Audiobookshelf library shape for troubleshooting",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "User ID", Required: true},
		},
		Action: func(c *cli.Context) error {
			a, err := loadApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			rt := a.RuntimeFor(c.String("user"))
			if rt == nil {
				return fmt.Errorf("unknown user %q", c.String("user"))
			}
			libs, err := rt.ABS.ListLibraries(context.Background())
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(libs, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or reset a user's cached sync state",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "User ID", Required: true},
			&cli.BoolFlag{Name: "clear", Usage: "Delete all cached rows for the user"},
			&cli.BoolFlag{Name: "stats", Usage: "Print cache summary counters"},
			&cli.StringFlag{Name: "export", Usage: "Export cached rows as JSON to `FILE`"},
			&cli.StringFlag{Name: "import", Usage: "Import cached rows from a JSON `FILE`"},
		},
		Action: func(c *cli.Context) error {
			a, err := loadApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			userID := c.String("user")

			switch {
			case c.Bool("clear"):
				if err := a.Store.ClearCache(ctx, userID); err != nil {
					return err
				}
				fmt.Printf("cleared cache for user %s\n", userID)
			case c.Bool("stats"):
				stats, err := a.Store.GetCacheStats(ctx, userID)
				if err != nil {
					return err
				}
				out, _ := json.MarshalIndent(stats, "", "  ")
				fmt.Println(string(out))
			case c.String("export") != "":
				data, err := a.Store.ExportToJSON(ctx, userID)
				if err != nil {
					return err
				}
				if err := os.WriteFile(c.String("export"), data, 0o644); err != nil {
					return err
				}
				fmt.Printf("exported cache for %s to %s\n", userID, c.String("export"))
			case c.String("import") != "":
				data, err := os.ReadFile(c.String("import"))
				if err != nil {
					return err
				}
				if err := a.Store.ImportFromJSON(ctx, data); err != nil {
					return err
				}
				fmt.Printf("imported cache from %s\n", c.String("import"))
			default:
				return fmt.Errorf("one of --clear, --stats, --export, --import is required")
			}
			return nil
		},
	}
}
