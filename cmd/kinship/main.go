package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/config"
	"github.com/dukerupert/kinship/internal/database"
	"github.com/dukerupert/kinship/internal/family"
	"github.com/dukerupert/kinship/internal/logging"
	"github.com/dukerupert/kinship/internal/metrics"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/push"
	"github.com/dukerupert/kinship/internal/server"
	"github.com/dukerupert/kinship/internal/store"
)

var envFile string

func main() {
	root := &cobra.Command{
		Use:           "kinship",
		Short:         "Family tree server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load settings from this file instead of .env")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the web server (default)",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "check",
			Short: "Run the consistency checks and print every issue",
			RunE:  runCheck,
		},
		exportCmd(),
		&cobra.Command{
			Use:   "vapid-keys",
			Short: "Generate a VAPID key pair for web push",
			RunE:  runVAPIDKeys,
		},
		createAdminCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		return config.Load(envFile)
	}
	return config.Load()
}

// setup loads the configuration, builds the logger and opens the database.
func setup() (*config.Config, *slog.Logger, *store.GraphStore, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cfg, logger, store.NewGraphStore(db), db.Close, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := server.New(db, cfg, metrics.New(), logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("kinship running", "addr", cfg.BaseURL, "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error { return srv.Janitor().Run(gctx) })
	g.Go(func() error { return srv.Archives().Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		srv.Shutdown()
		return err
	})

	return g.Wait()
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _, graphs, closeDB, err := setup()
	if err != nil {
		return err
	}
	defer closeDB()

	g, err := graphs.Load()
	if err != nil {
		return err
	}
	checkCfg := family.DefaultCheckConfig()
	checkCfg.MinParentAge = cfg.MinParentAge
	checkCfg.DeathGraceYears = cfg.DeathGraceYears
	checkCfg.MatchBirthDate = cfg.DuplicateMatchBirthDate

	report := family.Check(g, checkCfg)
	out := cmd.OutOrStdout()
	for _, is := range report.Issues {
		fmt.Fprintf(out, "%-8s %-16s %v  %s\n", is.Severity, is.Kind, is.PersonIDs, is.Message)
	}
	fmt.Fprintf(out, "%d issue(s)\n", len(report.Issues))
	if report.HasErrors() {
		return errors.New("consistency errors found")
	}
	return nil
}

func exportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole family graph as GEDCOM",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, graphs, closeDB, err := setup()
			if err != nil {
				return err
			}
			defer closeDB()

			g, err := graphs.Load()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			err = family.NewExporter("KINSHIP", "Kinship").Write(w, g)
			if errors.Is(err, family.ErrDegraded) {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: export degraded to a header-only file")
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	return cmd
}

func runVAPIDKeys(cmd *cobra.Command, args []string) error {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "KINSHIP_VAPID_PUBLIC_KEY=%s\n", pub)
	fmt.Fprintf(out, "KINSHIP_VAPID_PRIVATE_KEY=%s\n", priv)
	return nil
}

func createAdminCmd() *cobra.Command {
	var email, firstName, lastName, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			email = strings.ToLower(strings.TrimSpace(email))
			users := store.NewUserStore(db)
			existing, err := users.GetByEmail(email)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("user %s already exists", email)
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			u, err := users.Create(email, firstName, lastName, model.RoleAdmin, hash)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("first-name")
	cmd.MarkFlagRequired("password")
	return cmd
}
