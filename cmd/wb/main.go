package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"workboard/internal/config"
	"workboard/internal/db"
	"workboard/internal/engine"
	"workboard/internal/engine/auth"
	"workboard/internal/migrate"
	"workboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "wb",
	Short: "Workboard CLI",
	Long: `Workboard edits one shared collection of work items from a list, a board and a calendar.
- Items: title, status, priority, assignee, project, service, team, due date, labels and sub-items.
- Board: items grouped by one dimension; moving an item across columns changes that field.
- Calendar: timed items on an hour grid, date-only items in an all-day row; durations stay on this machine.
- Saves: structured fields are written at once, title and description after a quiet period; failed writes roll back.
- Server: 'wb serve' runs the reference item API with a websocket change feed.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WORKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory (holds workboard.yml and the server database)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier sent when the server runs without auth")
	rootCmd.PersistentFlags().String("url", "", "API url (overrides client.url)")
	rootCmd.PersistentFlags().String("token", "", "bearer token (overrides client.token)")
	rootCmd.PersistentFlags().String("namespace", "", "local state namespace (overrides client.namespace)")
	for _, name := range []string{"workspace", "json", "actor-id", "url", "token", "namespace"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(moveCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(draftCmd())
	rootCmd.AddCommand(durationCmd())
	rootCmd.AddCommand(prefsCmd())
}

// loadConfig reads workboard.yml from the workspace, if any, and applies
// flag and WORKBOARD_* overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("url"); v != "" {
		cfg.Client.URL = v
	}
	if v := viper.GetString("token"); v != "" {
		cfg.Client.Token = v
	}
	if v := viper.GetString("namespace"); v != "" {
		cfg.Client.Namespace = v
	}
	if v := viper.GetString("jwt-secret"); v != "" {
		cfg.Server.JWTSecret = v
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the item API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			logger := log.New(os.Stderr, "wb: ", log.LstdFlags)
			handler, err := server.New(server.Config{
				Engine:         e,
				BasePath:       cfg.Server.BasePath,
				Auth:           server.AuthConfig{JWTSecret: cfg.Server.JWTSecret, Logger: logger},
				AllowedOrigins: cfg.Server.AllowedOrigins,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ErrorLog: logger}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			mode := "open (X-Actor-Id)"
			if cfg.Server.JWTSecret != "" {
				mode = "bearer JWT"
			}
			fmt.Printf("Serving Workboard API on http://%s%s, auth %s (OpenAPI at %s/openapi.json, docs at /docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, mode, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject, name string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the server secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			token, err := auth.Issue(cfg.Server.JWTSecret, subject, name, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token, "subject": subject})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "actor id carried by the token (default --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration",
	}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default workboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.DefaultTemplate), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret != "" {
				cfg.Server.JWTSecret = "***"
			}
			if cfg.Client.Token != "" {
				cfg.Client.Token = "***"
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate workboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]bool{"valid": true})
			}
			fmt.Println("config ok")
			return nil
		},
	}
}

// --- helpers ---

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
