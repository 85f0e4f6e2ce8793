// Package svc wires the agent's components into one service context, the
// single owner of the database connection and all shared state.
package svc

import (
	"database/sql"
	"fmt"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/agent"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/cache"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/classify"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/client"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/config"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/db"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/lifecycle"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/notification"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/notify"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/retry"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/strategy"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/syncq"
)

// ServiceContext holds every shared component, built once at startup.
type ServiceContext struct {
	Config  config.Config
	Version string // build version, e.g. "v0.3.0" or "dev"

	DB      *sql.DB // nil in ephemeral mode
	Cache   *cache.Manager
	Hub     *client.Hub
	Agent   *agent.Agent
	Tracker *lifecycle.Tracker
}

// NewServiceContext builds the full component graph from configuration.
func NewServiceContext(c config.Config, version string) (*ServiceContext, error) {
	tracker := lifecycle.NewTracker()

	var (
		sqlDB *sql.DB
		store cache.Store
		queue syncq.Queue
	)
	if c.Cache.SQLitePath != "" {
		var err error
		sqlDB, err = db.Open(c.Cache.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		store = cache.NewSQLiteStore(sqlDB)
		queue = syncq.NewSQLiteQueue(sqlDB)
	} else {
		logging.Warn("no sqlite path configured, running with in-memory stores")
		store = cache.NewMemoryStore()
		queue = syncq.NewMemoryQueue()
	}

	mgr := cache.NewManager(store, c.Cache.Version)

	upstream, err := strategy.NewUpstream(c.Upstream.BaseURL)
	if err != nil {
		if sqlDB != nil {
			sqlDB.Close()
		}
		return nil, err
	}

	engine := strategy.NewEngine(mgr, upstream, tracker, c.Cache.MaxRuntimeEntries, c.NavigationTimeout())

	syncEndpoint, err := upstream.Resolve(c.Sync.Endpoint)
	if err != nil {
		if sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("resolve sync endpoint: %w", err)
	}

	hub := client.NewHub(tracker)
	coordinator := syncq.NewCoordinator(queue, syncEndpoint, retry.New(), c.Sync.MaxAttempts, hub)

	classifier := &classify.Classifier{
		SensitivePaths:  c.Classify.SensitivePaths,
		SensitiveParams: c.Classify.SensitiveParams,
		StaticExts:      c.Classify.StaticExts,
		CDNHosts:        c.Classify.CDNHosts,
	}

	ag := agent.New(agent.Options{
		Cache:      mgr,
		Classifier: classifier,
		Strategies: engine,
		Sync:       coordinator,
		Tracker:    tracker,
		Display: agent.DisplayFunc(func(p notification.Payload) {
			notify.Send(p.Title, p.Body)
		}),
		Router:           hub,
		PrecacheManifest: c.Cache.PrecacheManifest,
		MaxRuntime:       c.Cache.MaxRuntimeEntries,
	})
	hub.SetAgent(ag)

	return &ServiceContext{
		Config:  c,
		Version: version,
		DB:      sqlDB,
		Cache:   mgr,
		Hub:     hub,
		Agent:   ag,
		Tracker: tracker,
	}, nil
}

// Close releases the database connection.
func (s *ServiceContext) Close() {
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			logging.Errorf("close database: %v", err)
		}
	}
}
