package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/nethesis/nethcti-server-sub001/internal/command"
	"github.com/nethesis/nethcti-server-sub001/internal/config"
	"github.com/nethesis/nethcti-server-sub001/internal/logger"
	"github.com/nethesis/nethcti-server-sub001/internal/model"
	"github.com/nethesis/nethcti-server-sub001/internal/server/ami"
	"github.com/nethesis/nethcti-server-sub001/internal/server/metrics"
	"github.com/nethesis/nethcti-server-sub001/internal/storage"
	"github.com/nethesis/nethcti-server-sub001/internal/storage/pg"
	"github.com/nethesis/nethcti-server-sub001/internal/ucase"
)

var errNotReady = errors.New("not ready")

// serveSessions держит соединение с АТС, после разрыва ждёт и создаёт
// новую сессию
func serveSessions(ctx context.Context, cfg *config.Config, topology *model.Struct, notify chan<- model.Notification, current *atomic.Pointer[ucase.Session]) error {
	log := logger.Default()
	for {
		sess := ucase.NewSession(ucase.SessionOptions{
			Addr:           cfg.AMIAddr,
			User:           cfg.AMIUser,
			Secret:         cfg.AMISecret,
			ConnectTimeout: cfg.ConnectTimeout,
			ActionTimeout:  cfg.ActionTimeout,
			Commands: command.Options{
				Context:          cfg.DialContext,
				VoicemailContext: cfg.VoicemailContext,
				QueueLogonCode:   cfg.QueueLogonCode,
			},
			Proxy: ucase.Options{
				RecordPath: cfg.RecordPath,
				DTMFDelay:  cfg.DTMFDelay,
				Notify:     notify,
			},
			Topology: topology,
			OnState: func(n ami.Notice, err error) {
				if err != nil {
					log.Warnf("AMI %s: %s", n, err)
					return
				}
				log.Infof("AMI %s", n)
			},
		})
		current.Store(sess)

		err := sess.Run(ctx)
		current.Store(nil)
		// выход по сигналу
		if ctx.Err() != nil {
			return nil
		}
		// с неверным паролем переподключаться бесполезно
		if errors.Is(err, ami.ErrLoginFailed) {
			return err
		}
		log.Warnf("AMI session to %s ended: %v, reconnect in %s", cfg.AMIAddr, err, cfg.ReconnectDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.ReconnectDelay):
		}
	}
}

// fanOut раздаёт уведомления в метрики и журнал, на выходе закрывает оба
// канала
func fanOut(ctx context.Context, in <-chan model.Notification, outs ...chan model.Notification) error {
	defer func() {
		for _, out := range outs {
			close(out)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-in:
			for _, out := range outs {
				start := time.Now()
				select {
				case out <- n:
				case <-ctx.Done():
					return nil
				}
				if time.Since(start) > time.Second {
					jww.WARN.Printf("overflowing %s subscriber channel", n.Name)
				}
			}
		}
	}
}

func sessionReady(current *atomic.Pointer[ucase.Session]) metrics.Check {
	return func(context.Context) error {
		sess := current.Load()
		if sess == nil || sess.State() != ami.StateReady {
			return fmt.Errorf("ami %w", errNotReady)
		}
		select {
		case <-sess.Proxy().Ready():
			return nil
		default:
			return fmt.Errorf("proxy %w", errNotReady)
		}
	}
}

func main() {
	var g run.Group

	cfg, err := config.ParseConfig()
	// без конфига нам делать нечего - выход
	if err != nil {
		jww.ERROR.Fatal(err)
	}

	topology, err := model.LoadStructFile(cfg.StructFile)
	if err != nil {
		jww.ERROR.Fatalf("Error loading structure (%s): %s", cfg.StructFile, err)
	}

	// основной контекст для работы - он может закрыть всё
	ctx, cancel := context.WithCancel(context.Background())

	store, err := storage.New(ctx, cfg, nil)
	if err != nil {
		jww.ERROR.Fatal(err)
	}
	defer store.Close()
	if err := store.CreateTable(ctx, pg.DefaultTable); err != nil {
		jww.ERROR.Fatal(err)
	}

	notify := make(chan model.Notification, cfg.NotifyBuffer)
	metricsCh := make(chan model.Notification, cfg.NotifyBuffer)
	journalCh := make(chan model.Notification, cfg.NotifyBuffer)
	var current atomic.Pointer[ucase.Session]

	// сессии АТС с отменой контекста по ошибке
	g.Add(func() error { return serveSessions(ctx, cfg, topology, notify, &current) }, func(err error) { cancel() })
	// раздача уведомлений, закрывает каналы подписчиков
	g.Add(func() error { return fanOut(ctx, notify, metricsCh, journalCh) }, func(err error) { cancel() })
	// подписчики завершаются по закрытию своих каналов
	collector := metrics.NewCollector()
	g.Add(func() error { return collector.Run(metricsCh) }, func(err error) {})
	g.Add(func() error { return store.WatchNotifications(context.Background(), journalCh) }, func(err error) {})
	// публикация метрик с отменой контекста по ошибке
	router := metrics.NewRouter(map[string]metrics.Check{"ami": sessionReady(&current)}, nil)
	g.Add(func() error { return metrics.ServeMetrics(ctx, cfg.MetricsAddr, router, nil) }, func(err error) { cancel() })
	// перехват сигналов ОС с отменой контекста
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	// запускаем всё, при ошибке в любой компоненте - выход
	jww.INFO.Printf("Exit with: %v", g.Run())
}
