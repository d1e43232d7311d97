package usecase

import (
	"context"
	"fmt"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// NewConnection is user input for a profile before validation.
type NewConnection struct {
	Name     string
	Engine   string
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// Connections manages the registry on behalf of the command line.
type Connections struct {
	registry domain.ConnectionRegistry
	logger   Logger
}

func NewConnections(registry domain.ConnectionRegistry, logger Logger) *Connections {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Connections{registry: registry, logger: logger}
}

// Create validates in and stores it. The port falls back to the engine's
// default when zero.
func (c *Connections) Create(ctx context.Context, in NewConnection) (domain.ConnectionProfile, error) {
	engine, err := domain.ParseEngine(in.Engine)
	if err != nil {
		return domain.ConnectionProfile{}, domain.NewError(domain.KindInvalidProfile, in.Name, err.Error(), err)
	}

	profile := domain.ConnectionProfile{
		Name:       in.Name,
		Engine:     engine,
		Host:       in.Host,
		Port:       in.Port,
		Database:   in.Database,
		Username:   in.Username,
		Credential: domain.NewCredential(in.Password),
	}
	profile.Normalize()
	if err := profile.Validate(); err != nil {
		return domain.ConnectionProfile{}, err
	}

	id, err := c.registry.Create(ctx, profile)
	if err != nil {
		return domain.ConnectionProfile{}, err
	}

	stored, err := c.registry.Lookup(ctx, profile.Name)
	if err != nil {
		return domain.ConnectionProfile{}, fmt.Errorf("read back connection %s: %w", profile.Name, err)
	}
	c.logger.Infof("Added connection %s (%s, id %s)", stored.Name, stored.Engine, id)
	return stored, nil
}

func (c *Connections) List(ctx context.Context) ([]domain.ConnectionProfile, error) {
	profiles, err := c.registry.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return profiles, nil
}

func (c *Connections) Get(ctx context.Context, name string) (domain.ConnectionProfile, error) {
	return c.registry.Lookup(ctx, name)
}

// Delete removes the profile only; its backup history stays.
func (c *Connections) Delete(ctx context.Context, name string) (bool, error) {
	removed, err := c.registry.Delete(ctx, name)
	if err != nil {
		return false, fmt.Errorf("delete connection %s: %w", name, err)
	}
	if removed {
		c.logger.Infof("Deleted connection %s", name)
	}
	return removed, nil
}
