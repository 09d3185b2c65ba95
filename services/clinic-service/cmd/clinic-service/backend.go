package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/reminder"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage/memstore"
)

type bookingStore interface {
	ledger.Store
	availability.BookingReader
	reminder.Source
}

type windowStore interface {
	schedule.Store
	availability.WindowReader
}

// backend bundles the persistence collaborators for one storage driver.
type backend struct {
	windows   windowStore
	bookings  bookingStore
	directory handlers.Directory
	outbox    outbox.Source
	ready     []runtime.ReadyCheck
	close     func()
}

func openBackend(ctx context.Context, logger *slog.Logger) (*backend, error) {
	driver := strings.ToLower(config.String("STORAGE_DRIVER", "postgres"))
	switch driver {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		store := memstore.New()
		return &backend{
			windows:   store,
			bookings:  store,
			directory: store,
			outbox:    store,
			ready:     []runtime.ReadyCheck{{Name: "store", Check: store.Ping}},
			close:     func() {},
		}, nil
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, err
		}
		pool, err := db.Open(ctx, dbURL, db.PoolConfig{
			MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
			MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
		})
		if err != nil {
			return nil, fmt.Errorf("db connection failed: %w", err)
		}
		if config.Bool("MIGRATE_ON_START", true) {
			if err := storage.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info("schema migrated")
		}
		outboxRepo := outbox.NewRepository(pool)
		return &backend{
			windows:   storage.NewScheduleRepository(pool),
			bookings:  storage.NewBookingRepository(pool, outboxRepo),
			directory: storage.NewDirectoryRepository(pool),
			outbox:    outboxRepo,
			ready:     []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
			close:     pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown STORAGE_DRIVER %q (want postgres or memory)", driver)
}
