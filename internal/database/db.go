package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// ApplicationName tags ledger connections in pg_stat_activity.
const ApplicationName = "thermal-service"

// ErrNotConnected is returned by Status before Connect succeeds.
var ErrNotConnected = errors.New("database not initialized")

// PoolOptions sizes the shared pool.
type PoolOptions struct {
	URL         string
	MaxConns    int
	MinConns    int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

var (
	pool     *pgxpool.Pool
	poolMu   sync.RWMutex
	poolOnce sync.Once
)

// Connect opens the process-wide pool. Later calls are no-ops until Close.
func Connect(ctx context.Context, opts PoolOptions) error {
	var initErr error
	poolOnce.Do(func() {
		cfg, err := pgxpool.ParseConfig(opts.URL)
		if err != nil {
			initErr = fmt.Errorf("parse database url: %w", err)
			return
		}
		if opts.MaxConns > 0 {
			cfg.MaxConns = int32(opts.MaxConns)
		}
		if opts.MinConns > 0 {
			cfg.MinConns = int32(opts.MinConns)
		}
		if opts.MaxLifetime > 0 {
			cfg.MaxConnLifetime = opts.MaxLifetime
		}
		if opts.MaxIdleTime > 0 {
			cfg.MaxConnIdleTime = opts.MaxIdleTime
		}
		cfg.HealthCheckPeriod = time.Minute
		if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
			cfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
		}

		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			initErr = fmt.Errorf("create pool: %w", err)
			return
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			initErr = fmt.Errorf("ping database: %w", err)
			return
		}

		poolMu.Lock()
		pool = p
		poolMu.Unlock()
	})

	if initErr != nil {
		poolOnce = sync.Once{}
		return initErr
	}
	return nil
}

// Close closes the pool and allows a later Connect.
func Close() {
	poolMu.Lock()
	defer poolMu.Unlock()
	if pool != nil {
		pool.Close()
		pool = nil
	}
	poolOnce = sync.Once{}
}

// Pool returns the shared pool, or nil before Connect.
func Pool() *pgxpool.Pool {
	poolMu.RLock()
	defer poolMu.RUnlock()
	return pool
}

// Status pings the shared pool.
func Status(ctx context.Context) error {
	p := Pool()
	if p == nil {
		return ErrNotConnected
	}
	return p.Ping(ctx)
}

var (
	poolTotalDesc    = prometheus.NewDesc("thermal_db_pool_total_conns", "Connections currently open in the ledger pool.", nil, nil)
	poolAcquiredDesc = prometheus.NewDesc("thermal_db_pool_acquired_conns", "Connections currently checked out of the ledger pool.", nil, nil)
	poolIdleDesc     = prometheus.NewDesc("thermal_db_pool_idle_conns", "Idle connections in the ledger pool.", nil, nil)
	poolMaxDesc      = prometheus.NewDesc("thermal_db_pool_max_conns", "Configured maximum size of the ledger pool.", nil, nil)
	poolWaitDesc     = prometheus.NewDesc("thermal_db_pool_acquire_wait_seconds_total", "Time spent waiting for a pool connection.", nil, nil)
)

// PoolCollector exports statistics of the shared pool. It reports nothing
// while the pool is closed.
type PoolCollector struct{}

func (PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolTotalDesc
	ch <- poolAcquiredDesc
	ch <- poolIdleDesc
	ch <- poolMaxDesc
	ch <- poolWaitDesc
}

func (PoolCollector) Collect(ch chan<- prometheus.Metric) {
	p := Pool()
	if p == nil {
		return
	}
	st := p.Stat()
	ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.GaugeValue, float64(st.TotalConns()))
	ch <- prometheus.MustNewConstMetric(poolAcquiredDesc, prometheus.GaugeValue, float64(st.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(poolIdleDesc, prometheus.GaugeValue, float64(st.IdleConns()))
	ch <- prometheus.MustNewConstMetric(poolMaxDesc, prometheus.GaugeValue, float64(st.MaxConns()))
	ch <- prometheus.MustNewConstMetric(poolWaitDesc, prometheus.CounterValue, st.AcquireDuration().Seconds())
}
