package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rbaliyan/privmsg"
	"github.com/rbaliyan/privmsg/directory"
	"github.com/rbaliyan/privmsg/reminder"
	"github.com/rbaliyan/privmsg/store"
	"github.com/rbaliyan/privmsg/store/memory"
	mongostore "github.com/rbaliyan/privmsg/store/mongo"
	"github.com/rbaliyan/privmsg/store/postgres"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// backend is a connected service plus the clients it was built from.
type backend struct {
	svc     privmsg.Service
	logger  *slog.Logger
	closers []func(context.Context) error
}

// openBackend builds the configured store, connects the service and returns
// it. Close must be called when done.
func openBackend(ctx context.Context, v *viper.Viper) (_ *backend, err error) {
	logger, err := newLogger(v)
	if err != nil {
		return nil, err
	}
	b := &backend{logger: logger}
	defer func() {
		if err != nil {
			_ = b.closeClients(ctx)
		}
	}()

	st, err := b.openStore(ctx, v)
	if err != nil {
		return nil, err
	}

	opts := []privmsg.Option{
		privmsg.WithStore(st),
		privmsg.WithDirectory(directory.NewStatic(splitList(v.GetString("users"))...)),
		privmsg.WithLogger(logger),
	}
	if addr := v.GetString("redis"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		b.closers = append(b.closers, func(context.Context) error { return rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		opts = append(opts,
			privmsg.WithRedisClient(rdb),
			privmsg.WithReminderGate(reminder.NewRedis(rdb)),
		)
	}

	svc, err := privmsg.NewService(opts...)
	if err != nil {
		return nil, err
	}
	if err := svc.Connect(ctx); err != nil {
		return nil, err
	}
	b.svc = svc
	return b, nil
}

func (b *backend) openStore(ctx context.Context, v *viper.Viper) (store.Store, error) {
	dsn := v.GetString("dsn")
	switch driver := v.GetString("driver"); driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if dsn == "" {
			return nil, errors.New("postgres requires --dsn")
		}
		db, err := sqlx.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.closers = append(b.closers, func(context.Context) error { return db.Close() })
		return postgres.New(db, postgres.WithLogger(b.logger)), nil
	case "mongo":
		if dsn == "" {
			return nil, errors.New("mongo requires --dsn")
		}
		client, err := mongo.Connect(mongoopts.Client().ApplyURI(dsn))
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		b.closers = append(b.closers, client.Disconnect)
		return mongostore.New(client,
			mongostore.WithDatabase(v.GetString("database")),
			mongostore.WithLogger(b.logger),
		), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

// Close closes the service, then the clients in reverse order.
func (b *backend) Close(ctx context.Context) error {
	var errs []error
	if b.svc != nil {
		errs = append(errs, b.svc.Close(ctx))
	}
	errs = append(errs, b.closeClients(ctx))
	return errors.Join(errs...)
}

func (b *backend) closeClients(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i](ctx))
	}
	b.closers = nil
	return errors.Join(errs...)
}

// withBackend runs fn against a connected backend within the command timeout.
func withBackend(ctx context.Context, v *viper.Viper, fn func(ctx context.Context, svc privmsg.Service) error) error {
	ctx, cancel := context.WithTimeout(ctx, v.GetDuration("timeout"))
	defer cancel()

	b, err := openBackend(ctx, v)
	if err != nil {
		return err
	}
	runErr := fn(ctx, b.svc)
	if err := b.Close(ctx); err != nil {
		b.logger.Warn("close backend", "error", err)
	}
	return runErr
}
