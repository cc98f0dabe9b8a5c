// Package gateway wires the whole application together: storage, memory,
// the reply pipeline, messenger channels, background jobs and the HTTP API.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bonfirelabs/bonfire/internal/agent"
	"github.com/bonfirelabs/bonfire/internal/bus"
	"github.com/bonfirelabs/bonfire/internal/channel"
	"github.com/bonfirelabs/bonfire/internal/chat"
	"github.com/bonfirelabs/bonfire/internal/classify"
	"github.com/bonfirelabs/bonfire/internal/config"
	"github.com/bonfirelabs/bonfire/internal/cron"
	"github.com/bonfirelabs/bonfire/internal/memory"
	"github.com/bonfirelabs/bonfire/internal/pipeline"
	"github.com/bonfirelabs/bonfire/internal/search"
)

// Options carries test hooks for New.
type Options struct {
	Handler    Handler        // overrides the default pipeline runner
	SignalChan chan os.Signal // overrides OS signal delivery
}

type Gateway struct {
	cfg        *config.Config
	store      *chat.Store
	memStore   *memory.Store
	engine     *memory.Engine
	runner     Handler
	bus        *bus.MessageBus
	channels   *channel.ChannelManager
	cron       *cron.Service
	server     *Server
	httpServer *http.Server
	signalChan chan os.Signal
}

func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg, signalChan: opts.SignalChan}

	dbPath := strings.TrimSpace(cfg.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "bonfire.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := chat.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open chat store: %w", err)
	}
	g.store = store

	if err := store.EnsureAgentProfile(cfg.Agent.Name); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure agent profile: %w", err)
	}

	var engine *memory.Engine
	if cfg.Memory.Enabled {
		memStore, err := memory.NewStore(dbPath)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		g.memStore = memStore
		engine = memory.NewEngine(memStore, memory.NewSanitizer(cfg), memory.NewEmbedder(cfg), cfg)
		g.engine = engine
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	if opts.Handler != nil {
		g.runner = opts.Handler
	} else {
		toolbelt := &agent.Toolbelt{
			Profiles: store,
			Messages: store,
			Search:   search.NewClient(cfg),
			AgentID:  chat.AgentUserID,
		}
		responder := agent.NewResponder(cfg, toolbelt)
		classifier := classify.NewClassifier(cfg)

		var mem pipeline.Memory
		if engine != nil {
			mem = engine
		}
		g.runner = pipeline.NewRunner(store, classifier, mem, responder, g.bus, cfg)
	}

	chMgr, err := channel.NewChannelManager(cfg.Channels, g.bus)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	g.cron = cron.NewService()
	g.registerJobs()

	g.server = NewServer(store, g.runner)
	return g, nil
}

func (g *Gateway) registerJobs() {
	if g.cfg.Jobs.ReviveSweep.Enabled {
		expr := g.cfg.Jobs.ReviveSweep.Expr
		if expr == "" {
			expr = "0 0 18 * * *"
		}
		g.cron.Register("__internal:revive-sweep", expr, g.reviveSweep)
	}
	if g.cfg.Jobs.MemoryReport.Enabled && g.memStore != nil {
		expr := g.cfg.Jobs.MemoryReport.Expr
		if expr == "" {
			expr = "0 0 9 * * 1"
		}
		g.cron.Register("__internal:memory-report", expr, g.memoryReport)
	}
}

// reviveSweep pokes rooms that have gone quiet by synthesizing a system
// nudge through the normal pipeline, so the revive hard trigger fires.
func (g *Gateway) reviveSweep(ctx context.Context) {
	staleAfter, err := time.ParseDuration(g.cfg.Gate.StaleAfter)
	if err != nil || staleAfter <= 0 {
		staleAfter, _ = time.ParseDuration(config.DefaultStaleAfter)
	}

	rooms, err := g.store.IdleRooms(time.Now().Add(-staleAfter))
	if err != nil {
		log.Printf("[gateway] revive sweep: %v", err)
		return
	}
	for _, roomID := range rooms {
		history, err := g.store.RecentHistory(roomID, 1)
		if err != nil || len(history) == 0 {
			continue
		}
		last := history[0]
		if last.IsAgent {
			// Nobody answered the last nudge; don't double-post.
			continue
		}
		outcome, err := g.runner.Handle(ctx, pipeline.Incoming{
			RoomID:     roomID,
			MessageID:  last.ID,
			AuthorID:   last.AuthorID,
			AuthorName: last.AuthorName,
			Text:       last.Content,
		})
		if err != nil {
			log.Printf("[gateway] revive sweep room %s: %v", roomID, err)
			continue
		}
		if outcome.Replied {
			log.Printf("[gateway] revived room %s", roomID)
		}
	}
}

func (g *Gateway) memoryReport(ctx context.Context) {
	n, err := g.memStore.Count()
	if err != nil {
		log.Printf("[gateway] memory report: %v", err)
		return
	}
	msgs, err := g.store.MessageCount()
	if err != nil {
		log.Printf("[gateway] memory report: %v", err)
		return
	}
	log.Printf("[gateway] memory report: %d facts stored across %d messages", n, msgs)
}

// processLoop turns channel traffic into pipeline runs. Channel messages
// get the same treatment as API messages: persist first, then decide.
func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-g.bus.Inbound:
			g.handleInbound(ctx, msg)
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	authorID := msg.Channel + ":" + msg.SenderID
	if err := g.store.UpsertProfile(&chat.Profile{ID: authorID, Name: msg.Sender}); err != nil {
		log.Printf("[gateway] upsert channel profile: %v", err)
	}

	stored := &chat.Message{
		RoomID:   msg.RoomID,
		AuthorID: authorID,
		Content:  msg.Content,
	}
	if err := g.store.InsertMessage(stored); err != nil {
		log.Printf("[gateway] store inbound message: %v", err)
		return
	}

	outcome, err := g.runner.Handle(ctx, pipeline.Incoming{
		RoomID:     msg.RoomID,
		MessageID:  stored.ID,
		AuthorID:   authorID,
		AuthorName: msg.Sender,
		Text:       msg.Content,
	})
	if err != nil {
		log.Printf("[gateway] pipeline error for %s: %v", msg.Channel, err)
		return
	}
	if outcome.Silent {
		log.Printf("[gateway] staying silent in room %s: %s", msg.RoomID, outcome.Reason)
	}
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}

	go g.processLoop(ctx)

	addr := fmt.Sprintf("%s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)
	g.httpServer = &http.Server{
		Addr:              addr,
		Handler:           g.server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[gateway] listening on %s", addr)
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-sigCh:
	}

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) Shutdown() error {
	if g.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := g.httpServer.Shutdown(ctx); err != nil {
			log.Printf("[gateway] http shutdown: %v", err)
		}
	}
	g.cron.Stop()
	if err := g.channels.StopAll(); err != nil {
		log.Printf("[gateway] stop channels: %v", err)
	}
	g.Close()
	return nil
}

// Close releases storage handles. Safe to call more than once.
func (g *Gateway) Close() {
	if g.memStore != nil {
		if err := g.memStore.Close(); err != nil {
			log.Printf("[gateway] close memory store: %v", err)
		}
		g.memStore = nil
	}
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			log.Printf("[gateway] close chat store: %v", err)
		}
		g.store = nil
	}
}
