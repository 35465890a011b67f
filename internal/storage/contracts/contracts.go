package contracts

import (
	"context"
	"errors"

	"github.com/nethesis/nethcti-server-sub001/internal/model"
)

// IStore - журнал уведомлений
type IStore interface {
	CreateTable(ctx context.Context, table string) error
	WatchNotifications(ctx context.Context, ch <-chan model.Notification) error
	Close()
}

var (
	ErrDBConnFail    = errors.New("DB connection failed:")
	ErrDBCreateTable = errors.New("Creation journal table failed:")
	ErrDBInsert      = errors.New("Notification not journaled:")
)
