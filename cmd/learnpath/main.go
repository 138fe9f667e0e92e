package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/learnpath/internal/assessment"
	"github.com/pavelanni/learnpath/internal/auth"
	"github.com/pavelanni/learnpath/internal/handler"
	appI18n "github.com/pavelanni/learnpath/internal/i18n"
	"github.com/pavelanni/learnpath/internal/llm"
	"github.com/pavelanni/learnpath/internal/llm/prompts"
	"github.com/pavelanni/learnpath/internal/model"
	"github.com/pavelanni/learnpath/internal/progress"
	"github.com/pavelanni/learnpath/internal/remedial"
	"github.com/pavelanni/learnpath/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "learnpath",
		Short: "Lesson progression and quiz grading API",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), tokenCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `learnpath --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "learnpath.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSlice("lessons", nil, "Topic JSON files to import on startup (repeatable)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL (empty disables remedial generation)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("llm-timeout", remedial.DefaultTimeout, "Timeout for one remedial lesson generation")
	f.Bool("llm-json-mode", true, "Request JSON response format from the LLM endpoint")
	f.StringP("lang", "l", "en", "Default language for messages (en, ru)")
	f.String("jwt-secret", "", "HS256 secret for bearer tokens (or set LEARNPATH_JWT_SECRET)")
	f.String("jwt-issuer", "learnpath", "Expected token issuer (empty disables the check)")
	f.Int("tx-max-attempts", store.DefaultTxAttempts, "Attempts for a profile transaction under write contention")
	f.Duration("db-busy-timeout", store.DefaultBusyTimeout, "How long SQLite waits on a locked database before retrying")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import topics and lessons from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	addCommonFlags(cmd)
	cmd.Flags().Bool("force", false, "Re-import files whose content is unchanged")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for development",
		RunE:  runToken,
	}
	f := cmd.Flags()
	f.String("user", "", "User id (token subject, required)")
	f.String("email", "", "User email")
	f.String("name", "", "User display name")
	f.Duration("ttl", 24*time.Hour, "Token lifetime")
	f.String("jwt-secret", "", "HS256 secret for bearer tokens (or set LEARNPATH_JWT_SECRET)")
	f.String("jwt-issuer", "learnpath", "Token issuer")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's profile and progress as JSON",
		RunE:  runExport,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.String("user", "", "User id to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("LEARNPATH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("learnpath")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/learnpath")
	v.AddConfigPath("/etc/learnpath")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(v *viper.Viper) (*store.Store, error) {
	return store.New(v.GetString("db"), store.Options{
		TxMaxAttempts: v.GetInt("tx-max-attempts"),
		BusyTimeout:   v.GetDuration("db-busy-timeout"),
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	secret := v.GetString("jwt-secret")
	if secret == "" {
		return errors.New("jwt secret is required: set --jwt-secret flag or LEARNPATH_JWT_SECRET env var")
	}
	verifier, err := auth.NewVerifier(secret, v.GetString("jwt-issuer"))
	if err != nil {
		return fmt.Errorf("create token verifier: %w", err)
	}

	db, err := openStore(v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := importFiles(ctx, db, v.GetStringSlice("lessons"), false); err != nil {
		return fmt.Errorf("import lessons: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	if err := prompts.Load(prompts.Templates); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	var gen remedial.Generator
	if url := v.GetString("llm-url"); url != "" {
		client, err := llm.New(llm.Config{
			BaseURL:     url,
			APIKey:      v.GetString("llm-key"),
			Model:       v.GetString("llm-model"),
			Temperature: 0.4,
			MaxTokens:   1024,
			JSONMode:    v.GetBool("llm-json-mode"),
		})
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := client.Ping(pingCtx); err != nil {
			slog.Warn("LLM health check failed, remedial lessons will use fallbacks until it recovers",
				"url", url, "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", url, "model", client.Model())
		}
		cancel()
		gen = llm.NewResilient(client, llm.DefaultResilientConfig())
	} else {
		slog.Info("LLM disabled, remedial lessons use fallbacks")
	}

	svc := assessment.NewService(
		db,
		db,
		progress.NewUpdater(db, db, nil),
		remedial.New(gen, v.GetDuration("llm-timeout")),
	)
	h := handler.New(db, svc, verifier)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"db", v.GetString("db"),
			"model", v.GetString("llm-model"),
			"llm_url", v.GetString("llm-url"),
			"lang", lang,
			"jwt_issuer", v.GetString("jwt-issuer"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return importFiles(cmd.Context(), db, args, v.GetBool("force"))
}

func runToken(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	verifier, err := auth.NewVerifier(v.GetString("jwt-secret"), v.GetString("jwt-issuer"))
	if err != nil {
		return fmt.Errorf("create token issuer: %w", err)
	}
	token, err := verifier.Issue(model.User{
		ID:    v.GetString("user"),
		Email: v.GetString("email"),
		Name:  v.GetString("name"),
	}, v.GetDuration("ttl"))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportUser(cmd.Context(), v.GetString("user"))
	if err != nil {
		return fmt.Errorf("export user: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

// importFiles loads topic files into the store. A file whose sha256 matches
// the last import is skipped unless force is set.
func importFiles(ctx context.Context, db *store.Store, paths []string, force bool) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(ctx, path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash && !force {
			slog.Info("lessons file unchanged, skipping", "path", path)
			continue
		}

		topics, err := parseTopics(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		total := 0
		for _, ti := range topics {
			n, err := db.ImportTopic(ctx, ti)
			if err != nil {
				return fmt.Errorf("import topic %q from %s: %w", ti.ID, path, err)
			}
			total += n
		}

		if err := db.SetImportedFileHash(ctx, path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported lessons", "path", path, "topics", len(topics), "lessons", total)
	}
	return nil
}

// parseTopics accepts either a single topic object or an array of topics.
func parseTopics(data []byte) ([]model.TopicImport, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var topics []model.TopicImport
		if err := json.Unmarshal(data, &topics); err != nil {
			return nil, err
		}
		return topics, nil
	}
	var ti model.TopicImport
	if err := json.Unmarshal(data, &ti); err != nil {
		return nil, err
	}
	return []model.TopicImport{ti}, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
