package rpc

import (
	"context"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/turnserver/logger"
	"github.com/wfunc/turnserver/maintenance"
	"github.com/wfunc/turnserver/models"
	"github.com/wfunc/turnserver/persistence"
	"github.com/wfunc/turnserver/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server and registers the admin service.
func NewServer(addr string, admin *AdminService) (*Server, error) {
	if err := rpc.Register(admin); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes operational commands for operators: forcing a turn
// to advance, inspecting the id pool and kicking off maintenance.
type AdminService struct {
	games  *services.GameService
	store  persistence.GameStore
	runner *maintenance.Runner
}

func NewAdminService(games *services.GameService, store persistence.GameStore, runner *maintenance.Runner) *AdminService {
	return &AdminService{games: games, store: store, runner: runner}
}

type ForceAdvanceArgs struct {
	GameID     string
	TurnNumber int
}

type ForceAdvanceReply struct {
	Advanced    bool
	CurrentTurn int
}

// ForceAdvance manually runs turn advancement for a game, for recovering
// games whose scheduled job was lost.
func (a *AdminService) ForceAdvance(args *ForceAdvanceArgs, reply *ForceAdvanceReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	advanced, err := a.games.ApplyMovesAndRunGame(ctx, args.GameID, args.TurnNumber)
	if err != nil {
		return err
	}
	reply.Advanced = advanced

	turn, err := a.store.GetCurrentTurn(ctx, args.GameID)
	if err != nil {
		return err
	}
	reply.CurrentTurn = turn
	return nil
}

type PoolStatsArgs struct{}

type PoolStatsReply struct {
	Total     int
	Available []string
}

// PoolStats reports the state of the unused game id pool.
func (a *AdminService) PoolStats(_ *PoolStatsArgs, reply *PoolStatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	total, err := a.store.CountUnusedGameIDs(ctx)
	if err != nil {
		return err
	}
	available, err := a.store.ListUnusedGameIDs(ctx, 20)
	if err != nil {
		return err
	}
	reply.Total = total
	reply.Available = available
	return nil
}

type ReplacePiecesArgs struct {
	GameID string
	Pieces []models.Piece
}

type ReplacePiecesReply struct {
	Count int
}

// ReplacePieces swaps a game's piece set wholesale. Low-level tool for
// repairing broken simulation state; it bypasses turn accounting.
func (a *AdminService) ReplacePieces(args *ReplacePiecesArgs, reply *ReplacePiecesReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.store.ReplacePieces(ctx, args.GameID, args.Pieces); err != nil {
		return err
	}
	reply.Count = len(args.Pieces)
	return nil
}

type RunMaintenanceArgs struct{}

type RunMaintenanceReply struct {
	Done bool
}

// RunMaintenance triggers all maintenance jobs immediately.
func (a *AdminService) RunMaintenance(_ *RunMaintenanceArgs, reply *RunMaintenanceReply) error {
	a.runner.RepopulatePool()
	a.runner.ClearStaleLeases()
	a.runner.DeleteExpiredSessions()
	a.runner.DeleteStaleData()
	reply.Done = true
	return nil
}
