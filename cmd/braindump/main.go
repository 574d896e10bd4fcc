package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pbaille/braindump/internal/api"
	"github.com/pbaille/braindump/internal/classifier"
	"github.com/pbaille/braindump/internal/config"
	"github.com/pbaille/braindump/internal/dates"
	"github.com/pbaille/braindump/internal/domain"
	"github.com/pbaille/braindump/internal/fetcher"
	"github.com/pbaille/braindump/internal/logging"
	"github.com/pbaille/braindump/internal/pipeline"
	"github.com/pbaille/braindump/internal/render"
	"github.com/pbaille/braindump/internal/store"
)

var (
	cfgPath  string
	dbPath   string
	owner    string
	timezone string
	verbose  bool

	cfg    *config.Config
	logger = zap.NewNop()
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "braindump",
		Short:         "Turn brain-dump notes into organized, scheduled items",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DB = dbPath
			}
			if owner != "" {
				cfg.Owner = owner
			}
			if timezone != "" {
				cfg.Timezone = timezone
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err = logging.New(cfg.Log, verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&owner, "owner", "", "owner id (overrides config)")
	rootCmd.PersistentFlags().StringVar(&timezone, "tz", "", "IANA timezone (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(dropCmd())
	rootCmd.AddCommand(organizeCmd())
	rootCmd.AddCommand(promptCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var pe *pipeline.PurgeError
		if errors.As(err, &pe) {
			fmt.Fprintf(os.Stderr, "items were saved but %d fragment(s) are still pending; run 'braindump organize' again to reconcile\n", len(pe.Committed))
		}
		os.Exit(1)
	}
}

func getStore() (*store.Store, error) {
	dir := filepath.Dir(cfg.DB)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.Open(cfg.Driver, cfg.DB)
}

func newOrganizer(ctx context.Context, s *store.Store) (*pipeline.Organizer, error) {
	oracle, err := classifier.New(ctx, classifier.Settings{
		Provider:  cfg.Provider(),
		Model:     cfg.Oracle.Model,
		APIKey:    cfg.APIKey(),
		BaseURL:   cfg.Oracle.BaseURL,
		MaxTokens: cfg.Oracle.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create oracle: %w", err)
	}
	logger.Debug("oracle ready", zap.String("provider", cfg.Provider()))

	return pipeline.New(pipeline.Deps{
		Fragments: s,
		Organized: s,
		Archive:   s,
		Oracle:    oracle,
		Logger:    logger,
	}, pipeline.Options{
		OracleTimeout:   cfg.OracleTimeout(),
		DefaultTimezone: cfg.Timezone,
	}), nil
}

func passRequest(date string) (pipeline.Request, error) {
	req := pipeline.Request{OwnerID: cfg.Owner, Timezone: cfg.Timezone}
	if date != "" {
		anchor, err := dates.ParseDate(date)
		if err != nil {
			return req, err
		}
		req.AnchorDate = anchor
	}
	return req, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file and create the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := config.WriteDefault(cfgPath)
			if err != nil {
				return err
			}
			if created {
				fmt.Printf("Wrote %s\n", cfgPath)
			} else {
				fmt.Printf("Config already exists: %s\n", cfgPath)
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Printf("Database: %s\n", cfg.DB)
			return nil
		},
	}
}

func captureCmd() *cobra.Command {
	var fetch bool

	cmd := &cobra.Command{
		Use:   "capture [text]",
		Short: "Capture a fragment (reads one fragment per line from stdin without arguments)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var contents []string
			if len(args) > 0 {
				contents = []string{strings.Join(args, " ")}
			} else {
				lines, err := readLines(cmd.InOrStdin())
				if err != nil {
					return err
				}
				contents = lines
			}
			if len(contents) == 0 {
				return fmt.Errorf("nothing to capture")
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			f := fetcher.New(30 * time.Second)
			for _, content := range contents {
				if fetch && fetcher.IsURL(content) {
					page, err := f.Fetch(cmd.Context(), content)
					if err != nil {
						fmt.Printf("  warning: %v (keeping the bare URL)\n", err)
					} else {
						content = page.Fragment()
					}
				}

				frag, err := s.AddFragment(cmd.Context(), cfg.Owner, content)
				if err != nil {
					return err
				}
				fmt.Printf("Captured %s  %s\n", render.ShortID(frag.ID), truncate(frag.Content, 60))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fetch, "fetch", false, "fetch URL fragments and store the page title and excerpt")
	return cmd
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return lines, nil
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List fragments waiting to be organized",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			frags, err := s.PendingFragments(cmd.Context(), cfg.Owner)
			if err != nil {
				return err
			}

			if len(frags) == 0 {
				fmt.Println("No pending fragments. Use 'braindump capture' to add one.")
				return nil
			}

			for _, f := range frags {
				fmt.Printf("%s  %s  %s\n", render.ShortID(f.ID), f.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(f.Content, 60))
			}
			return nil
		},
	}
}

func dropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop [id]",
		Short: "Delete a pending fragment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			frags, err := s.PendingFragments(cmd.Context(), cfg.Owner)
			if err != nil {
				return err
			}

			var found []string
			for _, f := range frags {
				if strings.HasPrefix(f.ID, args[0]) {
					found = append(found, f.ID)
				}
			}
			switch len(found) {
			case 0:
				return fmt.Errorf("fragment not found: %s", args[0])
			case 1:
			default:
				return fmt.Errorf("fragment prefix %s is ambiguous", args[0])
			}

			if err := s.DeleteFragment(cmd.Context(), cfg.Owner, found[0]); err != nil {
				return err
			}
			fmt.Printf("Dropped %s\n", render.ShortID(found[0]))
			return nil
		},
	}
}

func organizeCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Organize pending fragments into categorized items",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := passRequest(date)
			if err != nil {
				return err
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			org, err := newOrganizer(cmd.Context(), s)
			if err != nil {
				return err
			}

			fmt.Print("Organizing... ")
			res, err := org.Organize(cmd.Context(), req)
			if errors.Is(err, pipeline.ErrInputEmpty) {
				fmt.Println("nothing to do")
				return nil
			}
			if err != nil {
				fmt.Println("failed")
				return err
			}
			fmt.Println("done")
			fmt.Print(render.Summary(res))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "treat this YYYY-MM-DD as today")
	return cmd
}

func promptCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the contract for the pending fragments without calling the oracle",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := passRequest(date)
			if err != nil {
				return err
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			org := pipeline.New(pipeline.Deps{Fragments: s, Organized: s, Logger: logger},
				pipeline.Options{DefaultTimezone: cfg.Timezone})
			text, err := org.Contract(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "treat this YYYY-MM-DD as today")
	return cmd
}

func listCmd() *cobra.Command {
	var (
		all      bool
		category string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show organized items by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			var only domain.Category
			if category != "" {
				c, ok := domain.ParseCategory(category)
				if !ok {
					return fmt.Errorf("unknown category %q", category)
				}
				only = c
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			items, err := s.ListOrganized(cmd.Context(), cfg.Owner, all)
			if err != nil {
				return err
			}
			if only != "" {
				items = domain.Group(items)[only]
			}
			fmt.Println(render.Board(items))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed items")
	cmd.Flags().StringVarP(&category, "category", "c", "", `only this category, e.g. "do" or "Shopping List"`)
	return cmd
}

func completeCmd() *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "complete [id]",
		Short: "Mark an organized item as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			item, err := s.FindItem(cmd.Context(), cfg.Owner, args[0])
			if err != nil {
				return err
			}
			if err := s.SetCompleted(cmd.Context(), cfg.Owner, item.ID, !undo); err != nil {
				return err
			}
			item.Completed = !undo
			fmt.Println(render.Line(*item))
			return nil
		},
	}

	cmd.Flags().BoolVar(&undo, "undo", false, "reopen the item")
	return cmd
}

func archiveCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Show the most recent archived items",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			items, err := s.ListArchive(cmd.Context(), cfg.Owner, limit)
			if err != nil {
				return err
			}

			if len(items) == 0 {
				fmt.Println("Archive is empty.")
				return nil
			}

			for _, it := range items {
				fmt.Printf("%s  %-22s %s\n", it.UpdatedAt.Local().Format("2006-01-02 15:04"), it.Category.Label(), render.Line(it))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of archived items to show")
	return cmd
}

func resolveCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "resolve [phrase]",
		Short: "Resolve a relative date phrase such as \"next friday at 3pm\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := passRequest(date)
			if err != nil {
				return err
			}
			anchor := req.AnchorDate
			if anchor.IsZero() {
				loc, err := time.LoadLocation(cfg.Timezone)
				if err != nil {
					return err
				}
				anchor = dates.Today(time.Now(), loc)
			}

			res, match := dates.Extract(strings.Join(args, " "), anchor)
			fmt.Printf("Anchor:     %s\n", anchor.Format("Monday 2006-01-02"))
			fmt.Printf("Rule:       %s\n", match.Kind)
			if match.Phrase != "" {
				fmt.Printf("Phrase:     %q\n", match.Phrase)
			}
			if d := res.DateString(); d != nil {
				wd, _ := dates.Weekday(*d)
				fmt.Printf("Date:       %s (%s)\n", *d, wd)
			}
			if res.Time != nil {
				fmt.Printf("Time:       %s\n", *res.Time)
			}
			if res.Recurrence != "" {
				fmt.Printf("Recurrence: %s\n", res.Recurrence)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "anchor date as YYYY-MM-DD (default: today)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.Server.Addr
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			org, err := newOrganizer(ctx, s)
			if err != nil {
				return err
			}

			server := api.New(api.Options{
				Addr:      addr,
				Store:     s,
				Organizer: org,
				Fetcher:   fetcher.New(30 * time.Second),
				Owner:     cfg.Owner,
				Timezone:  cfg.Timezone,
				Logger:    logger,
			})
			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (default from config)")
	return cmd
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
