package simulator

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"sousvide_simulator/internal/authmock"
	"sousvide_simulator/internal/config"
	"sousvide_simulator/internal/controlapi"
	"sousvide_simulator/internal/device"
	"sousvide_simulator/internal/faults"
	"sousvide_simulator/internal/logger"
	"sousvide_simulator/internal/models"
	"sousvide_simulator/internal/physics"
	"sousvide_simulator/internal/repository"
	"sousvide_simulator/internal/server"
	"sousvide_simulator/internal/ws"
)

// tickInterval is the physics step in simulated seconds. The real wall-clock
// sleep between steps is this divided by the time scale.
const tickInterval = 1 * time.Second

// Simulator owns the device, the fault injector and the three servers, and
// runs the physics tick loop that advances them all.
type Simulator struct {
	cfg *config.Config
	log *logger.Logger

	dev      *device.Device
	injector *faults.Injector
	wsServer *ws.Server
	repo     *repository.Repository

	protocolSrv *server.Server
	controlSrv  *server.Server
	authSrv     *server.Server

	protocolRouter http.Handler
	controlRouter  http.Handler
	authRouter     http.Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the full simulator from configuration and an open database
// handle. The caller keeps ownership of db.
func New(cfg *config.Config, db *sql.DB, log *logger.Logger) (*Simulator, error) {
	state := models.NewCookerState(cfg.CookerID, cfg.DeviceType, cfg.FirmwareVersion, cfg.AmbientTemp)

	dev := device.New(state,
		device.Limits{
			MinTempCelsius:  cfg.MinTempCelsius,
			MaxTempCelsius:  cfg.MaxTempCelsius,
			MinTimerSeconds: cfg.MinTimerSeconds,
			MaxTimerSeconds: cfg.MaxTimerSeconds,
		},
		physics.Params{
			AmbientTemp:     cfg.AmbientTemp,
			HeatingRate:     cfg.HeatingRate,
			CoolingRate:     cfg.CoolingRate,
			TempTolerance:   cfg.TempTolerance,
			TempOscillation: cfg.TempOscillation,
		},
		cfg.TimeScale,
	)

	repo := repository.NewRepository(db, cfg.MessageLogCap)

	registry := authmock.NewRegistry(cfg.ValidTokens, cfg.ExpiredTokens)
	authService, err := authmock.NewService(registry, cfg.Credentials, cfg.TokenExpiry)
	if err != nil {
		return nil, err
	}

	wsServer := ws.NewServer(dev, registry, repo.Messages,
		cfg.BroadcastIntervalIdle, cfg.BroadcastIntervalCooking, log.Named("ws"))

	// The injector disconnects and broadcasts through the protocol server,
	// while the server consults the injector per command, so the gate is
	// wired in after both exist.
	injector := faults.New(dev, wsServer, log.Named("faults"))
	wsServer.SetFaultGate(injector)

	controlHandler := controlapi.NewHandler(dev, injector, wsServer, repo.Messages, log.Named("control"))
	authHandler := authmock.NewHandler(authService, log.Named("auth"))

	return &Simulator{
		cfg:            cfg,
		log:            log,
		dev:            dev,
		injector:       injector,
		wsServer:       wsServer,
		repo:           repo,
		protocolSrv:    &server.Server{},
		controlSrv:     &server.Server{},
		authSrv:        &server.Server{},
		protocolRouter: wsServer.Router(),
		controlRouter:  controlHandler.InitRoutes(),
		authRouter:     authHandler.Router(),
	}, nil
}

// Start launches the three servers, the physics loop and the periodic
// broadcast loop. It returns once everything is launched; listener errors
// are reported on the returned channel.
func (s *Simulator) Start() <-chan error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	errCh := make(chan error, 3)
	s.runServer(s.protocolSrv, s.cfg.WSPort, s.protocolRouter, "protocol", errCh)
	s.runServer(s.controlSrv, s.cfg.ControlPort, s.controlRouter, "control", errCh)
	s.runServer(s.authSrv, s.cfg.AuthPort, s.authRouter, "auth", errCh)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.wsServer.RunBroadcastLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.runPhysicsLoop(ctx)
	}()

	s.log.Infow("simulator started",
		"ws_port", s.cfg.WSPort,
		"control_port", s.cfg.ControlPort,
		"auth_port", s.cfg.AuthPort,
		"time_scale", s.cfg.TimeScale,
	)
	return errCh
}

func (s *Simulator) runServer(srv *server.Server, port int, handler http.Handler, name string, errCh chan<- error) {
	go func() {
		if err := srv.Run(port, handler); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
}

// runPhysicsLoop steps the device once per simulated second. The wall sleep
// shrinks with the time scale so accelerated runs still take one-second
// simulated steps, and dt is measured from the wall clock so a slow or
// descheduled loop never loses simulated time.
func (s *Simulator) runPhysicsLoop(ctx context.Context) {
	lastTick := time.Now()
	timer := time.NewTimer(tickInterval)
	defer timer.Stop()

	for {
		timer.Reset(time.Duration(float64(tickInterval) / s.dev.TimeScale()))
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := time.Now()
		dt := now.Sub(lastTick).Seconds() * s.dev.TimeScale()
		lastTick = now

		if s.dev.Tick(dt) {
			// PREHEATING reached target or the cook timer expired.
			s.wsServer.BroadcastState()
		}
	}
}

// Device exposes the state machine for tests and embedding callers.
func (s *Simulator) Device() *device.Device { return s.dev }

// Stop shuts everything down in dependency order: the loops first, then the
// protocol sessions, then the listeners.
func (s *Simulator) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.wsServer.Shutdown()
	s.injector.Shutdown()

	var firstErr error
	for _, srv := range []*server.Server{s.protocolSrv, s.controlSrv, s.authSrv} {
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.log.Infow("simulator stopped")
	return firstErr
}
