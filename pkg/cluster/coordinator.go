package cluster

import (
	"fmt"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
)

// CoordinatorConfig configures the embedded coordinator.
type CoordinatorConfig struct {
	// Host to listen on. Default: "127.0.0.1".
	Host string

	// Port to listen on. -1 picks a random free port. Default: -1.
	Port int

	// StoreDir is the JetStream storage directory. Default: a server-chosen temp dir.
	StoreDir string

	// ReadyTimeout bounds how long Start waits for the server. Default: 5s.
	ReadyTimeout time.Duration
}

// Coordinator is an in-process nats-server with JetStream enabled.
// It is the shared-state service every worker process connects to.
type Coordinator struct {
	srv *natssrv.Server
}

// StartCoordinator starts an embedded coordinator and waits until it accepts
// connections.
func StartCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = -1
	}
	readyTimeout := cfg.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = 5 * time.Second
	}

	opts := &natssrv.Options{
		Host:      host,
		Port:      port,
		JetStream: true,
		StoreDir:  cfg.StoreDir,
		NoSigs:    true,
	}
	s, err := natssrv.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}
	go s.Start()
	if !s.ReadyForConnections(readyTimeout) {
		s.Shutdown()
		return nil, fmt.Errorf("coordinator not ready after %s", readyTimeout)
	}
	return &Coordinator{srv: s}, nil
}

// ClientURL returns the URL workers use to connect.
func (c *Coordinator) ClientURL() string {
	return c.srv.ClientURL()
}

// Shutdown stops the coordinator and waits for it to exit.
func (c *Coordinator) Shutdown() {
	c.srv.Shutdown()
	c.srv.WaitForShutdown()
}
