package domain

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Credential holds a secret. It never prints its value through fmt or
// structured loggers; adapters read it with Reveal.
type Credential struct {
	secret string
}

func NewCredential(secret string) Credential {
	return Credential{secret: secret}
}

func (c Credential) Reveal() string {
	return c.secret
}

func (c Credential) IsZero() bool {
	return c.secret == ""
}

func (c Credential) String() string {
	if c.secret == "" {
		return ""
	}
	return "******"
}

func (c Credential) GoString() string {
	return "domain.Credential{" + c.String() + "}"
}

func (c Credential) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ConnectionProfile is a named set of connection parameters.
type ConnectionProfile struct {
	ID         string
	Name       string
	Engine     Engine
	Host       string
	Port       int
	Database   string
	Username   string
	Credential Credential
	CreatedAt  time.Time
}

// Normalize fills engine defaults and trims user input.
func (p *ConnectionProfile) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Host = strings.TrimSpace(p.Host)
	p.Database = strings.TrimSpace(p.Database)
	p.Username = strings.TrimSpace(p.Username)
	if p.Port == 0 {
		p.Port = p.Engine.DefaultPort()
	}
}

// Names end up in artifact file names, so they are limited to characters
// that are safe in a single path element.
var connectionName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

const maxNameLength = 128

// ValidateName rejects names that are empty, too long, or could step
// outside the backup directory.
func ValidateName(name string) error {
	switch {
	case name == "":
		return NewError(KindInvalidProfile, "", "name is required", nil)
	case len(name) > maxNameLength:
		return NewError(KindInvalidProfile, name, fmt.Sprintf("name is longer than %d characters", maxNameLength), nil)
	case !connectionName.MatchString(name) || strings.Contains(name, ".."):
		return NewError(KindInvalidProfile, name,
			"name may only contain letters, digits, '.', '_' and '-' and must start with a letter or digit", nil)
	}
	return nil
}

// Validate reports malformed profiles. It runs at creation time, so an
// unknown engine never reaches the orchestrator through the registry.
func (p ConnectionProfile) Validate() error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	switch {
	case !p.Engine.Valid():
		return NewError(KindInvalidProfile, p.Name, fmt.Sprintf("unknown engine %q", p.Engine), nil)
	case p.Host == "":
		return NewError(KindInvalidProfile, p.Name, "host is required", nil)
	case p.Port <= 0 || p.Port > 65535:
		return NewError(KindInvalidProfile, p.Name, fmt.Sprintf("invalid port %d", p.Port), nil)
	case p.Database == "":
		return NewError(KindInvalidProfile, p.Name, "database name is required", nil)
	case p.Username == "":
		return NewError(KindInvalidProfile, p.Name, "username is required", nil)
	}
	return nil
}

// ConnectionRegistry is the durable store of profiles keyed by name.
type ConnectionRegistry interface {
	// Lookup returns an error of kind KindConnectionNotFound when name is absent.
	Lookup(ctx context.Context, name string) (ConnectionProfile, error)
	Enumerate(ctx context.Context) ([]ConnectionProfile, error)
	// Create returns the new profile ID, or KindDuplicateName.
	Create(ctx context.Context, profile ConnectionProfile) (string, error)
	Delete(ctx context.Context, name string) (bool, error)
}
