package sphinxql

import (
	"database/sql"
	"net"
	"strconv"
	"time"

	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/internal/sqlutil"
	"github.com/go-sql-driver/mysql"
)

// ConnConfig describes how to reach the searchd MySQL listeners.
type ConnConfig struct {
	Addresses      []string
	Port           int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxOpenConns   int
}

// Open opens one connection pool per searchd address. searchd ignores
// credentials and database names; statements are sent as plain text since
// searchd does not implement server-side prepared statements.
func Open(cfg ConnConfig) ([]sqlutil.DB, func() error, error) {
	if len(cfg.Addresses) == 0 {
		return nil, nil, rterrors.NewValidationError(rterrors.CodeInvalidValue, "sphinxql: no searchd address configured")
	}

	var pools []*sql.DB
	closeAll := func() error {
		var first error
		for _, p := range pools {
			if err := p.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	hosts := make([]sqlutil.DB, 0, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		mc := mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(addr, strconv.Itoa(cfg.Port))
		mc.Timeout = cfg.ConnectTimeout
		mc.ReadTimeout = cfg.ReadTimeout
		mc.InterpolateParams = true

		connector, err := mysql.NewConnector(mc)
		if err != nil {
			closeAll()
			return nil, nil, rterrors.NewTransportError(rterrors.CodeConnectFailed, "configure searchd "+mc.Addr, err)
		}
		db := sql.OpenDB(connector)
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxOpenConns)
		}
		pools = append(pools, db)
		hosts = append(hosts, db)
	}
	return hosts, closeAll, nil
}
