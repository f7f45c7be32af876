// courses-admin performs one-off administrative tasks against the same
// database the API uses.
//
// USAGE:
//
//	courses-admin --config=config/local.yaml migrate
//	courses-admin --config=config/local.yaml create-user -id T1 -name "Jane Doe" -role T
//	courses-admin --config=config/local.yaml token -id T1
//
// The token subcommand prints a bearer token for an existing user, which
// is how clients obtain credentials: login is handled outside this API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aanand-mishra/courses-api/internal/auth"
	"github.com/aanand-mishra/courses-api/internal/config"
	"github.com/aanand-mishra/courses-api/internal/logger"
	"github.com/aanand-mishra/courses-api/internal/storage/sqlstore"
	"github.com/aanand-mishra/courses-api/internal/types"
)

var errUsage = errors.New("usage: courses-admin [--config=PATH] migrate | create-user | token")

func main() {
	cfg := config.MustLoad()

	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, flag.Args(), os.Stdout); err != nil {
		log.Error("courses-admin failed", zap.Error(err))
		os.Exit(1)
	}
}

// run executes the subcommand named by args[0].
func run(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	store, err := sqlstore.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	switch args[0] {
	case "migrate":
		if err := store.Migrate(ctx, log); err != nil {
			return err
		}
		log.Info("migrations applied")
		return nil
	case "create-user":
		return createUser(ctx, store, log, args[1:])
	case "token":
		return issueToken(ctx, cfg, store, args[1:], out)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

func createUser(ctx context.Context, store *sqlstore.Store, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	var (
		user types.User
		role string
	)
	fs.StringVar(&user.StaffID, "id", "", "staff id (required)")
	fs.StringVar(&user.FullName, "name", "", "full name (required)")
	fs.StringVar(&role, "role", "", "A, T or S (required)")
	fs.StringVar(&user.ClassID, "class", "", "class id")
	fs.StringVar(&user.PhoneNumber, "phone", "", "phone number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user.Role = types.Role(role)
	if user.StaffID == "" || user.FullName == "" {
		return errors.New("create-user: -id and -name are required")
	}
	if !user.Role.Valid() {
		return fmt.Errorf("create-user: invalid role %q", role)
	}

	if err := store.CreateUser(ctx, user); err != nil {
		return err
	}
	log.Info("user created", zap.String("staff_id", user.StaffID), zap.String("role", user.Role.String()))
	return nil
}

func issueToken(ctx context.Context, cfg *config.Config, store *sqlstore.Store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	staffID := fs.String("id", "", "staff id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *staffID == "" {
		return errors.New("token: -id is required")
	}

	user, err := store.GetUser(ctx, *staffID)
	if err != nil {
		return err
	}
	token, err := auth.NewAccessToken(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL, auth.Claims{
		StaffID: user.StaffID,
		Role:    string(user.Role),
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
