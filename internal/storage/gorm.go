package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/DataShades/fpx/internal/models"
)

// GormStore keeps tickets and clients in a relational database.
type GormStore struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

// NewGormStore wraps an existing gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// OpenPostgres shares one pgx pool between gorm and River.
func OpenPostgres(ctx context.Context, dsn string) (*GormStore, error) {
	pgxConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pgxConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn: sqlDB,
	}), &gorm.Config{TranslateError: true})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize GORM with shared pool: %w", err)
	}
	return &GormStore{db: db, pool: pool}, nil
}

// OpenSQLite opens a file database; "" or ":memory:" gives an in-memory one.
func OpenSQLite(path string) (*GormStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// one writer at a time; an in-memory database is also private to its connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return &GormStore{db: db}, nil
}

// DB exposes the gorm handle.
func (s *GormStore) DB() *gorm.DB { return s.db }

// Pool is nil unless the store was opened on postgres.
func (s *GormStore) Pool() *pgxpool.Pool { return s.pool }

func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.Ticket{}, &models.Client{})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

func (s *GormStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var t models.Ticket
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *GormStore) InsertTicket(ctx context.Context, t *models.Ticket) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *GormStore) DeleteTicket(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Ticket{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) SetTicketAvailable(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Ticket{}).Where("id = ?", id).Update("is_available", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListTickets(ctx context.Context, offset, limit int) ([]models.Ticket, int64, error) {
	var total int64
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Ticket{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = -1
	}
	var tickets []models.Ticket
	if err := db.Order("created_at ASC").Offset(offset).Limit(limit).Find(&tickets).Error; err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (s *GormStore) DeleteTicketsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.Ticket{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) DeleteAllTickets(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Ticket{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) FindClientByName(ctx context.Context, name string) (*models.Client, error) {
	var c models.Client
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *GormStore) FindClientByID(ctx context.Context, id string) (*models.Client, error) {
	var c models.Client
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *GormStore) InsertClient(ctx context.Context, c *models.Client) error {
	err := s.db.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (s *GormStore) DeleteClient(ctx context.Context, name string) (bool, error) {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&models.Client{})
	return res.RowsAffected > 0, res.Error
}

func (s *GormStore) UpdateClientID(ctx context.Context, name, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Client{}).Where("name = ?", name).Update("id", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListClients(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	err := s.db.WithContext(ctx).Order("name ASC").Find(&clients).Error
	return clients, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
