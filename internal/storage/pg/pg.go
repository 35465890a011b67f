package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nethesis/nethcti-server-sub001/internal/config"
	"github.com/nethesis/nethcti-server-sub001/internal/logger"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
	"github.com/nethesis/nethcti-server-sub001/internal/storage/contracts"
)

// DefaultTable - таблица журнала по-умолчанию
const DefaultTable = "cti_journal"

// execer - то что нужно журналу от пула, pgxmock тоже подходит
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

type pgStore struct {
	db    execer
	table string
	log   logger.Logger
}

// Создаём новое соединение с БД
func Connect(ctx context.Context, cfg *config.Config, log logger.Logger) (contracts.IStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w err: %s", contracts.ErrDBConnFail, err)
	}
	// pgxpool.New ленивый, проверяем соединение сразу
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w err: %s", contracts.ErrDBConnFail, err)
	}
	return newStore(pool, log), nil
}

func newStore(db execer, log logger.Logger) *pgStore {
	return &pgStore{db: db, table: DefaultTable, log: logger.OrDefault(log)}
}

func (p *pgStore) CreateTable(ctx context.Context, table string) error {
	query := `CREATE TABLE IF NOT EXISTS ` + table +
		`(
      id bigserial primary key,
      created_at timestamptz not null default now(),
      name varchar(32) not null,
      key varchar(128) not null,
      payload jsonb
    );
    CREATE INDEX IF NOT EXISTS ` + table + `_name_key_idx ON ` + table + ` USING btree (name, key);
    CREATE INDEX IF NOT EXISTS ` + table + `_created_at_idx ON ` + table + ` USING brin (created_at)`

	if _, err := p.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w err: %s", contracts.ErrDBCreateTable, err)
	}
	p.table = table
	return nil
}

func (p *pgStore) insert(ctx context.Context, n model.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("%w %s %s: %s", contracts.ErrDBInsert, n.Name, n.Key, err)
	}
	// время уведомления, если не проставлено - время вставки
	created := n.Time
	if created.IsZero() {
		created = time.Now()
	}
	tag, err := p.db.Exec(ctx, "insert into "+p.table+" (created_at, name, key, payload) values ($1, $2, $3, $4)", created, n.Name, n.Key, payload)
	if err != nil {
		return fmt.Errorf("%w %s %s: %s", contracts.ErrDBInsert, n.Name, n.Key, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w %s %s: unknown reason", contracts.ErrDBInsert, n.Name, n.Key)
	}
	return nil
}

// WatchNotifications пишет уведомления в журнал пока канал открыт.
// Ошибка вставки не останавливает журнал.
func (p *pgStore) WatchNotifications(ctx context.Context, ch <-chan model.Notification) error {
	defer p.log.Infof("Shutdown journal worker")

	for {
		select {
		// сигнал на выход
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			// канал закрыт делать больше нечего
			if !ok {
				return nil
			}
			if err := p.insert(ctx, n); err != nil {
				p.log.Errorf("%s", err)
			}
		}
	}
}

func (p *pgStore) Close() {
	p.db.Close()
}
