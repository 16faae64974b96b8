package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/nikhilbhutani/docingest/internal/auth"
	"github.com/nikhilbhutani/docingest/internal/config"
	"github.com/nikhilbhutani/docingest/internal/database"
	"github.com/nikhilbhutani/docingest/internal/document"
	"github.com/nikhilbhutani/docingest/internal/models"
	"github.com/nikhilbhutani/docingest/internal/queue"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("docctl failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docctl",
		Usage: "Operate the document ingestion pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending database migrations",
				Action: migrateCommand,
			},
			{
				Name:   "requeue",
				Usage:  "Return documents stuck in queued back to pending",
				Action: requeueCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:     "older-than",
						Usage:    "Only documents queued longer than this",
						Required: true,
					},
				},
			},
			{
				Name:      "show",
				Usage:     "Print a document record and its chunk",
				ArgsUsage: "<document-id>",
				Action:    showCommand,
			},
			{
				Name:   "recover-queue",
				Usage:  "Move unacknowledged jobs back onto the Redis backlog",
				Action: recoverQueueCommand,
			},
			{
				Name:   "token",
				Usage:  "Issue an API bearer token signed with AUTH_JWT_SECRET",
				Action: tokenCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "subject",
						Usage:    "Token subject",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "role",
						Usage: "Role: admin, uploader or viewer",
						Value: "viewer",
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime",
						Value: 24 * time.Hour,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.String("log-level"), err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func openStore(c *cli.Context, cfg *config.Config) (*document.PostgresStore, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL is not set")
	}
	db, err := database.NewPool(c.Context, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return document.NewPostgresStore(db), db.Close, nil
}

func migrateCommand(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	db, err := database.NewPool(c.Context, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := database.RunMigrations(c.Context, db, cfg.Database.MigrationsPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "applied %d migration(s)\n", n)
	return nil
}

func requeueCommand(c *cli.Context) error {
	olderThan := c.Duration("older-than")
	if olderThan <= 0 {
		return errors.New("--older-than must be positive")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, closeDB, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := store.ReclaimStale(c.Context, olderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "requeued %d document(s)\n", n)
	return nil
}

type showOutput struct {
	Document *models.Document `json:"document"`
	Chunk    *models.Chunk    `json:"chunk,omitempty"`
}

func showCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one document id")
	}
	id, err := uuid.Parse(c.Args().First())
	if err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, closeDB, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	doc, err := store.Get(c.Context, id)
	if err != nil {
		return err
	}
	out := showOutput{Document: doc}
	chunk, err := store.ChunkFor(c.Context, id)
	switch {
	case err == nil:
		out.Chunk = chunk
	case !errors.Is(err, document.ErrNotFound):
		return err
	}
	return writeJSON(c.App.Writer, out)
}

func recoverQueueCommand(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Queue.Backend != "redis" {
		return fmt.Errorf("recover-queue only applies to the redis backend, got %q", cfg.Queue.Backend)
	}
	broker := queue.NewRedisBroker(cfg.Redis, cfg.Queue.Name)
	defer broker.Close()

	n, err := broker.Recover(c.Context)
	if err != nil {
		return err
	}
	backlog, inflight, err := broker.Depth(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "recovered %d job(s); backlog=%d in-flight=%d\n", n, backlog, inflight)
	return nil
}

func tokenCommand(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return issueToken(c.App.Writer, cfg.Auth.JWTSecret, c.String("subject"), c.String("role"), c.Duration("ttl"))
}

func issueToken(w io.Writer, secret, subject, role string, ttl time.Duration) error {
	if secret == "" {
		return errors.New("AUTH_JWT_SECRET is not set")
	}
	if _, ok := auth.Roles[role]; !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	tok, err := auth.NewJWTMiddleware(secret).Sign(auth.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(w, tok)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
