package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/agent"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/server"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/svc"
)

// RunServe starts the agent daemon: install + activate the cache generation,
// serve the HTTP/WebSocket surface, and keep the sync schedule running until
// a signal arrives.
func RunServe() {
	c := ServerConfig
	if c.Upstream.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: upstream base URL is required (--upstream or UPSTREAM_BASE_URL)")
		os.Exit(1)
	}

	svcCtx, err := svc.NewServiceContext(*c, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer svcCtx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	go svcCtx.Hub.Run(ctx)

	// Install seeds the precache; a fully failed seed is not fatal, the
	// runtime store still works and a later restart reseeds.
	if err := svcCtx.Agent.Dispatch(ctx, agent.Event{Kind: agent.EventInstall}); err != nil {
		logging.Warnf("install: %v", err)
	}
	if err := svcCtx.Agent.Dispatch(ctx, agent.Event{Kind: agent.EventActivate}); err != nil {
		logging.Errorf("activate: %v", err)
	}

	var sched *cron.Cron
	if c.Sync.Schedule != "" {
		sched = cron.New()
		_, err := sched.AddFunc(c.Sync.Schedule, func() {
			if err := svcCtx.Agent.Dispatch(ctx, agent.Event{Kind: agent.EventSync}); err != nil {
				logging.Warnf("scheduled sync: %v", err)
			}
		})
		if err != nil {
			logging.Errorf("invalid sync schedule %q: %v", c.Sync.Schedule, err)
		} else {
			sched.Start()
			defer sched.Stop()
		}
	}

	if err := server.Run(ctx, c.ListenAddr(), server.New(svcCtx)); err != nil {
		logging.Errorf("server: %v", err)
	}

	// Event lifetimes extend over their detached side effects; give
	// outstanding background work a window to finish.
	if !svcCtx.Agent.Shutdown(10 * time.Second) {
		logging.Warn("shutdown: background work still pending after timeout")
	}
}
