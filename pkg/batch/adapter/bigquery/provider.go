package bigquery

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	coreConfig "github.com/datasus/sihrd/pkg/batch/core/config"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// ConnectFunc opens a connection. Tests replace it with a fake.
type ConnectFunc func(ctx context.Context, cfg Config, name string) (Connection, error)

// Provider caches BigQuery connections by configured name.
type Provider struct {
	cfg         *coreConfig.Config
	connect     ConnectFunc
	connections map[string]Connection
	mu          sync.Mutex
}

// NewProvider creates a Provider that opens real clients.
func NewProvider(cfg *coreConfig.Config) *Provider {
	return NewProviderWith(cfg, func(ctx context.Context, c Config, name string) (Connection, error) {
		return NewConnection(ctx, c, name)
	})
}

// NewProviderWith creates a Provider that opens connections with connect.
func NewProviderWith(cfg *coreConfig.Config, connect ConnectFunc) *Provider {
	return &Provider{cfg: cfg, connect: connect, connections: make(map[string]Connection)}
}

// GetConnection returns the cached connection for name, opening it on first use.
func (p *Provider) GetConnection(ctx context.Context, name string) (Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	c, err := LookupConfig(p.cfg, name)
	if err != nil {
		return nil, err
	}
	conn, err := p.connect(ctx, c, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	return conn, nil
}

// CloseAll closes every cached connection.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		logger.Debugf("BigQuery connection '%s' closed.", name)
	}
	p.connections = make(map[string]Connection)
	return result
}

// Module provides the Provider and closes its connections on stop.
var Module = fx.Options(
	fx.Provide(NewProvider),
	fx.Invoke(func(lc fx.Lifecycle, p *Provider) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return p.CloseAll() },
		})
	}),
)
