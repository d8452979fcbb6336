package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/iziplay/csw-harvester/pkg/config"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const uniqueViolation = "23505"

var (
	ErrInstanceNotFound = errors.New("instance not found")
	ErrInstanceExists   = errors.New("instance already exists")
	ErrQueueItemMissing = errors.New("queue item not found")
)

// Gateway is the handle to the harvester database. Master tables are
// prefixed "csw_", every instance gets its own set of "<prefix>_" tables.
type Gateway struct {
	db    *gorm.DB
	stats *statsCache
}

// Open connects to Postgres and configures the connection pool
func Open(cfg config.Postgres) (*Gateway, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.New(
			log.Default(),
			logger.Config{
				SlowThreshold:             10 * time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: "csw_",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("Database connection established", "host", cfg.Host, "database", cfg.Database)

	return New(db), nil
}

// New wraps an existing gorm handle
func New(db *gorm.DB) *Gateway {
	return &Gateway{db: db, stats: newStatsCache()}
}

// DB exposes the gorm handle, e.g. to register plugins
func (g *Gateway) DB() *gorm.DB {
	return g.db
}

// Ping checks the database connection
func (g *Gateway) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// InitMaster creates the PostGIS extension and the master tables
func (g *Gateway) InitMaster(ctx context.Context) error {
	slog.Info("Running master migration...")

	db := g.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS postgis").Error; err != nil {
		return fmt.Errorf("failed to create postgis extension: %w", err)
	}
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS pg_trgm").Error; err != nil {
		return fmt.Errorf("failed to create pg_trgm extension: %w", err)
	}

	if err := db.AutoMigrate(&Instance{}, &Harvest{}); err != nil {
		return fmt.Errorf("master migration failed: %w", err)
	}

	slog.Info("Master migration completed successfully")
	return nil
}

// CreateInstance registers an endpoint and creates its tables in one transaction
func (g *Gateway) CreateInstance(ctx context.Context, inst *Instance) error {
	t, err := tablesFor(inst.Prefix)
	if err != nil {
		return err
	}

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(inst).Error; err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", ErrInstanceExists, inst.Prefix)
			}
			return fmt.Errorf("failed to insert instance: %w", err)
		}
		return t.migrate(tx)
	})
	if err != nil {
		return err
	}

	slog.Info("Instance created", "id", inst.ID, "prefix", inst.Prefix, "url", inst.URL)
	return nil
}

// GetInstance looks an instance up by numeric id or by prefix
func (g *Gateway) GetInstance(ctx context.Context, identifier string) (*Instance, error) {
	identifier = strings.TrimSpace(identifier)

	q := g.db.WithContext(ctx)
	if id, err := strconv.ParseUint(identifier, 10, 64); err == nil {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("prefix = ?", identifier)
	}

	var inst Instance
	err := q.First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return &inst, nil
}

// ActiveInstances returns every instance flagged active
func (g *Gateway) ActiveInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	if err := g.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return instances, nil
}

// ResetTables deletes all harvested rows of an instance
func (g *Gateway) ResetTables(ctx context.Context, prefix string) error {
	t, err := tablesFor(prefix)
	if err != nil {
		return err
	}

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range t.resetOrder() {
			if err := tx.Exec("DELETE FROM " + name).Error; err != nil {
				return fmt.Errorf("failed to reset %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	g.stats.invalidate(prefix)
	return nil
}

// LastHarvest returns the most recent harvest log entry, nil when there is none
func (g *Gateway) LastHarvest(ctx context.Context) (*Harvest, error) {
	var h Harvest
	err := g.db.WithContext(ctx).Order("date DESC").First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last harvest: %w", err)
	}
	return &h, nil
}

// SaveHarvest stores a harvest log entry
func (g *Gateway) SaveHarvest(ctx context.Context, h *Harvest) error {
	if err := g.db.WithContext(ctx).Save(h).Error; err != nil {
		return fmt.Errorf("failed to save harvest: %w", err)
	}
	return nil
}

// sanitizeString removes null bytes which PostgreSQL rejects in text fields
func sanitizeString(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
