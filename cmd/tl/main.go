package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskline/internal/app"
	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Taskline CLI",
	Long: `Taskline tracks project work: tasks move backlog -> todo -> in_progress -> review -> done,
sprints group them, timers record effort, and every change leaves an activity log,
analytics events and notifications behind.
- Workspace: the .taskline directory holding the SQLite database, next to taskline.yml.
- Actor: commands run as --actor-id with --role (scrum_master or employee).
- Event log: analytics events, view with 'tl log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("auth.jwt_secret")
	_ = viper.BindEnv("log.level")
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("role", domain.RoleScrumMaster, "actor role (scrum_master or employee)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(timerCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and a default taskline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			rt, err := app.Open(cmd.Context(), workspace, nil, nil)
			if err != nil {
				return err
			}
			rt.Close()
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				printInfo("kept existing %s", path)
				return nil
			}
			secret, err := randomSecret()
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(secret)), 0o600); err != nil {
				return err
			}
			printSuccess("initialised workspace at %s (database %s)", workspace, db.Path(workspace))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing taskline.yml")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and the event relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is empty; run tl init or set TASKLINE_AUTH_JWT_SECRET")
			}
			logger := app.NewLogger(os.Stderr, cfg.Log.Level)
			rt, err := app.Open(ctx, viper.GetString("workspace"), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			dispatcher, err := rt.Relay()
			if err != nil {
				return err
			}
			relayDone := make(chan struct{})
			go func() {
				defer close(relayDone)
				if dispatcher == nil {
					return
				}
				logger.Info("event relay started", "routes", len(dispatcher.Routes))
				if err := dispatcher.Run(ctx); err != nil {
					logger.Error("event relay stopped", "error", err)
				}
			}()

			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: cfg.Server.BasePath,
				Logger:   logger,
				Auth: server.AuthConfig{
					JWTSecret: cfg.Auth.JWTSecret,
					TokenTTL:  cfg.Auth.TokenTTL,
					DevTokens: cfg.Auth.DevTokens,
					Logger:    logger,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving Taskline API", "url", "http://"+cfg.Server.Addr+cfg.Server.BasePath, "docs", "/docs")
			if cfg.Auth.DevTokens {
				logger.Warn("dev token endpoint enabled", "path", cfg.Server.BasePath+"/auth/dev/token")
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			<-relayDone
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --actor-id and --role",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.Auth.TokenTTL
			}
			token, exp, err := server.SignToken(cfg.Auth.JWTSecret, currentActor(), ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "expires_at": exp})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Behavioral event log",
		Long:  "Analytics events recorded by task, timer and comment changes plus client views.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var (
		n                   int
		kind, taskID, actor string
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, a domain.Actor) error {
				evs, err := rt.Engine.ListBehavioralEvents(ctx, a, engine.EventQuery{ActorID: actor, TaskID: taskID, Kind: kind, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evs)
				}
				printEvents(evs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&kind, "kind", "", "event kind filter")
	cmd.Flags().StringVar(&taskID, "task", "", "task id filter")
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter (scrum masters only)")
	return cmd
}

// --- helpers ---

func currentActor() domain.Actor {
	return domain.Actor{ID: viper.GetString("actor-id"), Role: viper.GetString("role")}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if secret := viper.GetString("auth.jwt_secret"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if level := viper.GetString("log.level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime, domain.Actor) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := app.Open(ctx, viper.GetString("workspace"), cfg, app.NewLogger(os.Stderr, cfg.Log.Level))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt, currentActor())
}

func randomSecret() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func optionalChanged(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}
