package tracker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/netvoice/tracker/internal/tracker/actions"
	"github.com/netvoice/tracker/internal/tracker/channel"
	"github.com/netvoice/tracker/internal/tracker/client"
	"github.com/netvoice/tracker/internal/tracker/config"
	"github.com/netvoice/tracker/internal/tracker/history"
	"github.com/netvoice/tracker/internal/tracker/reconciler"
	"github.com/netvoice/tracker/internal/tracker/store"
)

// This variable is set during build time.
// It contains the version of the code.
var version string

// Tracker wires the reconciliation core together: one push channel, one
// reconciler, one store, one action gateway, one history controller, and the
// local read-only status server.
type Tracker struct {
	config *config.Config

	store      *store.Store
	channel    *channel.Channel
	reconciler *reconciler.Reconciler
	gateway    *actions.Gateway
	history    *history.Controller
	server     *Server
}

func New(cfg *config.Config) (*Tracker, error) {
	operationsClient, err := client.NewFromConfig(&cfg.OperationsService.Config)
	if err != nil {
		return nil, err
	}

	eventsURL, err := cfg.OperationsService.EventsURL()
	if err != nil {
		return nil, err
	}

	st := store.NewStore(store.WithRecentCapacity(cfg.RecentOperations))
	ch := channel.New(eventsURL,
		channel.WithBufferCapacity(cfg.BufferCapacity),
		channel.WithReconnectDelay(cfg.ReconnectDelay.Duration, cfg.MaxReconnectDelay.Duration),
	)

	return &Tracker{
		config:     cfg,
		store:      st,
		channel:    ch,
		reconciler: reconciler.New(st, ch, operationsClient, cfg.PollInterval.Duration),
		gateway:    actions.New(st, operationsClient, ch, cfg.LabId),
		history:    history.New(operationsClient, st, cfg.HistoryRefreshInterval.Duration),
	}, nil
}

// Store exposes the canonical state for read-only consumers.
func (t *Tracker) Store() *store.Store {
	return t.store
}

// Gateway exposes the user-action surface.
func (t *Tracker) Gateway() *actions.Gateway {
	return t.gateway
}

// History exposes the history view controller.
func (t *Tracker) History() *history.Controller {
	return t.history
}

// Run starts the tracker and blocks until a signal arrives or the context is
// cancelled. Timers and the push channel are torn down on the way out.
func (t *Tracker) Run(ctx context.Context) error {
	logger := zap.S().Named("tracker")
	logger.Infof("Starting tracker: %s", version)
	defer logger.Infof("Tracker stopped")
	logger.Infof("Configuration: %s", t.config.String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.start(ctx)

	select {
	case <-sig:
	case <-ctx.Done():
	}

	logger.Info("stopping tracker...")
	t.stop()
	cancel()

	return nil
}

func (t *Tracker) start(ctx context.Context) {
	if t.config.StatusPort > 0 {
		t.server = NewServer(t.config.StatusPort)
		go t.server.Start(t.store, t.channel, t.history)
	}

	go func() {
		if err := t.channel.Run(ctx); err != nil && ctx.Err() == nil {
			zap.S().Named("tracker").Errorf("push channel stopped: %v", err)
		}
	}()
	go func() {
		if err := t.reconciler.Run(ctx); err != nil && ctx.Err() == nil {
			zap.S().Named("tracker").Errorf("reconciler stopped: %v", err)
		}
	}()
	go func() {
		if err := t.history.Run(ctx); err != nil && ctx.Err() == nil {
			zap.S().Named("tracker").Errorf("history controller stopped: %v", err)
		}
	}()
}

func (t *Tracker) stop() {
	if t.server != nil {
		serverCh := make(chan any)
		t.server.Stop(serverCh)
		<-serverCh
		zap.S().Named("tracker").Info("server stopped")
	}
}
