package domain

import (
	"fmt"
	"strings"
)

// Engine identifies a database product. The set is closed: adding an engine
// means adding a constant here and an adapter in the database package.
type Engine string

const (
	EnginePostgres  Engine = "postgres"
	EngineMySQL     Engine = "mysql"
	EngineMariaDB   Engine = "mariadb"
	EngineSQLServer Engine = "sqlserver"
)

var engines = []Engine{EnginePostgres, EngineMySQL, EngineMariaDB, EngineSQLServer}

// Engines returns the supported engines in display order.
func Engines() []Engine {
	out := make([]Engine, len(engines))
	copy(out, engines)
	return out
}

// ParseEngine maps user input to a known engine. A few common aliases are
// accepted; anything else is rejected.
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return EnginePostgres, nil
	case "mysql":
		return EngineMySQL, nil
	case "mariadb":
		return EngineMariaDB, nil
	case "sqlserver", "mssql":
		return EngineSQLServer, nil
	}
	return "", fmt.Errorf("unknown engine %q (supported: postgres, mysql, mariadb, sqlserver)", s)
}

func (e Engine) Valid() bool {
	for _, known := range engines {
		if e == known {
			return true
		}
	}
	return false
}

// DefaultPort is the port used when a profile leaves it unset.
func (e Engine) DefaultPort() int {
	switch e {
	case EnginePostgres:
		return 5432
	case EngineMySQL, EngineMariaDB:
		return 3306
	case EngineSQLServer:
		return 1433
	}
	return 0
}

// Extension is the artifact file extension, without the dot.
func (e Engine) Extension() string {
	switch e {
	case EngineSQLServer:
		return "bak"
	case EnginePostgres, EngineMySQL, EngineMariaDB:
		return "sql"
	}
	return "backup"
}

func (e Engine) String() string {
	return string(e)
}
