package storage

import (
	"context"
	"fmt"

	"github.com/nethesis/nethcti-server-sub001/internal/config"
	"github.com/nethesis/nethcti-server-sub001/internal/logger"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
	"github.com/nethesis/nethcti-server-sub001/internal/storage/contracts"
	"github.com/nethesis/nethcti-server-sub001/internal/storage/pg"
)

func New(ctx context.Context, cfg *config.Config, log logger.Logger) (contracts.IStore, error) {
	switch cfg.DBDriver {
	case config.DBDriverNone:
		return nopStore{}, nil
	case "pg", "pgsql", "postgresql":
		return pg.Connect(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("%w: Invalid DB driver %s", contracts.ErrDBConnFail, cfg.DBDriver)
	}
}

// nopStore только вычитывает канал
type nopStore struct{}

func (nopStore) CreateTable(context.Context, string) error { return nil }
func (nopStore) Close()                                    {}

func (nopStore) WatchNotifications(ctx context.Context, ch <-chan model.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
		}
	}
}
