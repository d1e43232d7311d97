package database

import (
	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
)

// NewTable builds the static engine to adapter mapping.
func NewTable(tools config.ToolsConfig, opts Options) map[domain.Engine]domain.Adapter {
	return map[domain.Engine]domain.Adapter{
		domain.EnginePostgres:  NewPostgres(tools.PgDump, tools.Psql, opts).WithSSLMode(tools.PgSSLMode),
		domain.EngineMySQL:     NewMySQL(tools.MySQLDump, tools.MySQL, opts),
		domain.EngineMariaDB:   NewMariaDB(tools.MariaDBDump, tools.MariaDB, opts),
		domain.EngineSQLServer: NewSQLServer(tools.Sqlcmd, opts),
	}
}
