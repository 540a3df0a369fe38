package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage/memory"
)

type store interface {
	booking.Store
	notify.Store
}

// backend bundles the storage adapter chosen by STORAGE_DRIVER. pool and
// outboxRepo are nil for the memory driver, which has no outbox relay.
type backend struct {
	store      store
	inbox      consumer.Inbox
	pool       *db.Pool
	outboxRepo *outbox.Repository
	checks     []runtime.ReadyCheck
	close      func()
}

func openBackend(ctx context.Context, logger *slog.Logger) (*backend, error) {
	driver := strings.ToLower(config.String("STORAGE_DRIVER", "postgres"))
	switch driver {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		mem := memory.New()
		return &backend{store: mem, inbox: mem, close: func() {}}, nil
	case "postgres":
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", driver)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		return nil, fmt.Errorf("db connection failed: %w", err)
	}
	if config.Bool("AUTO_MIGRATE", true) {
		if err := storage.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema migrated")
	}
	outboxRepo := outbox.NewRepository()
	return &backend{
		store:      storage.New(pool, outboxRepo),
		inbox:      inbox.NewRepository(pool),
		pool:       pool,
		outboxRepo: outboxRepo,
		checks:     []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
		close:      pool.Close,
	}, nil
}
