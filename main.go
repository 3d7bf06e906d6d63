package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/turnserver/config"
	"github.com/wfunc/turnserver/logger"
	"github.com/wfunc/turnserver/maintenance"
	"github.com/wfunc/turnserver/monitor"
	"github.com/wfunc/turnserver/persistence"
	"github.com/wfunc/turnserver/rpc"
	"github.com/wfunc/turnserver/scheduler"
	"github.com/wfunc/turnserver/server"
	"github.com/wfunc/turnserver/services"
	"github.com/wfunc/turnserver/simulation"
)

// turnJobScheduler 把存储层的“调度下个回合”请求转成进程内调度任务。
// games 在装配完成后注入，打破 store 与 service 的构造环。
type turnJobScheduler struct {
	sched *scheduler.Scheduler
	games *services.GameService
}

func (t *turnJobScheduler) ScheduleTurn(gameID string, turnNumber int, eta time.Time) error {
	if t.games == nil {
		return fmt.Errorf("turn scheduler not wired yet")
	}
	name := fmt.Sprintf("advance:%s:%d", gameID, turnNumber)
	t.sched.ScheduleAt(name, eta, func() {
		t.games.RunScheduledTurn(gameID, turnNumber)
	})
	return nil
}

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	sched := scheduler.New()
	turnSched := &turnJobScheduler{sched: sched}

	gateway := simulation.NewGateway(
		cfg.Simulation.NodeExecutable,
		cfg.Simulation.ScriptPath,
		cfg.Simulation.Timeout,
		cfg.Simulation.MaxInputBytes,
	)

	// Auth store first: it owns the password and session tables the game
	// store writes credentials into.
	pg := cfg.Database.Postgres
	authStore, err := persistence.NewPqAuthStore(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	if err != nil {
		logger.Log.Fatalf("Failed to connect auth store: %v", err)
	}
	defer authStore.Close()

	store, err := persistence.NewGormGameStore(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, gateway, turnSched)
	if err != nil {
		logger.Log.Fatalf("Failed to connect game store: %v", err)
	}
	defer store.Close()
	logger.Log.Info("Database connection successful.")

	gameService := services.NewGameService(store, cfg.Game)
	turnSched.games = gameService
	authService := services.NewAuthService(authStore)

	runner := maintenance.NewRunner(store, authStore, cfg.Maintenance)
	runner.RegisterPeriodic(sched)
	go runner.RepopulatePool()

	mon := monitor.NewMonitor()
	mon.StartServer(cfg.Server.MetricsAddress)

	adminService := rpc.NewAdminService(gameService, store, runner)
	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, adminService)
	if err != nil {
		logger.Log.Fatalf("Failed to start RPC server: %v", err)
	}
	go rpcServer.Start()

	httpServer := server.NewServer(cfg.Server.HTTPAddress, gameService, authService, store)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Log.Errorf("HTTP shutdown error: %v", err)
	}
	rpcServer.Stop()
	sched.Stop()
}
