package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"wessbooks/pkg/domain"
)

const migrateLockID int64 = 73217321

type GormStoreOptions struct {
	Logger *slog.Logger
}

type GormStoreOption func(*GormStoreOptions)

// WithLogger routes gorm's warnings and slow-query reports to logger.
func WithLogger(logger *slog.Logger) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.Logger = logger
	}
}

// GormStore implements Store using GORM over SQLite or Postgres.
type GormStore struct {
	db       *gorm.DB
	postgres bool
	ready    *atomic.Bool
}

// NewGormStore opens the database named by dsn. SQLite is used for file
// paths; postgres:// URLs and host= keyword DSNs select Postgres. The schema
// is not touched until Init is called.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database dsn required")
	}
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	gormLog := gormlogger.New(
		slog.NewLogLogger(opts.Logger.Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	usePostgres := isPostgresDSN(dsn)
	var dialector gorm.Dialector
	if usePostgres {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if !usePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		// One connection serializes every statement, matching the
		// single-writer behavior of an embedded database.
		sqlDB.SetMaxOpenConns(1)
	}
	return &GormStore{db: db, postgres: usePostgres, ready: new(atomic.Bool)}, nil
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.HasPrefix(lower, "host=")
}

// Init creates the cart and users tables if they do not exist yet.
func (s *GormStore) Init(ctx context.Context) error {
	migrate := func(db *gorm.DB) error {
		if err := db.WithContext(ctx).AutoMigrate(&CartLineModel{}, &UserModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	var err error
	if s.postgres {
		err = withMigrationLock(ctx, s.db, migrate)
	} else {
		err = migrate(s.db)
	}
	if err != nil {
		return err
	}
	s.ready.Store(true)
	return nil
}

func withMigrationLock(ctx context.Context, db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// WithinTx runs fn inside a database transaction.
func (s *GormStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	if !s.ready.Load() {
		return ErrNotReady
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, postgres: s.postgres, ready: s.ready})
	})
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) conn(ctx context.Context) (*gorm.DB, error) {
	if !s.ready.Load() {
		return nil, ErrNotReady
	}
	return s.db.WithContext(ctx), nil
}

// FindLineByTitle looks up a cart line by exact title.
func (s *GormStore) FindLineByTitle(ctx context.Context, title string) (domain.CartLine, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.CartLine{}, false, err
	}
	var model CartLineModel
	if err := db.Where("title = ?", title).Order("id ASC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.CartLine{}, false, nil
		}
		return domain.CartLine{}, false, err
	}
	return lineFromModel(model), true, nil
}

// InsertLine adds a new cart line and returns it with its assigned ID.
func (s *GormStore) InsertLine(ctx context.Context, title string, quantity int) (domain.CartLine, error) {
	if quantity < 1 {
		return domain.CartLine{}, ErrInvalidQuantity
	}
	db, err := s.conn(ctx)
	if err != nil {
		return domain.CartLine{}, err
	}
	model := CartLineModel{Title: title, Quantity: quantity}
	if err := db.Create(&model).Error; err != nil {
		return domain.CartLine{}, err
	}
	return lineFromModel(model), nil
}

// UpdateLineQuantity sets the quantity of a line. A missing ID is not an error.
func (s *GormStore) UpdateLineQuantity(ctx context.Context, id int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Model(&CartLineModel{}).Where("id = ?", id).Update("quantity", quantity).Error
}

// DeleteLine removes a line. A missing ID is not an error.
func (s *GormStore) DeleteLine(ctx context.Context, id int64) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Delete(&CartLineModel{}, "id = ?", id).Error
}

// DeleteAllLines clears the cart in one statement.
func (s *GormStore) DeleteAllLines(ctx context.Context) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CartLineModel{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ListLines returns all lines ordered by primary key.
func (s *GormStore) ListLines(ctx context.Context) ([]domain.CartLine, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var models []CartLineModel
	if err := db.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.CartLine, 0, len(models))
	for _, m := range models {
		res = append(res, lineFromModel(m))
	}
	return res, nil
}

// SumQuantity returns the total quantity across all lines, 0 when empty.
func (s *GormStore) SumQuantity(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := db.Model(&CartLineModel{}).Select("COALESCE(SUM(quantity), 0)").Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

// CountLines returns the number of lines.
func (s *GormStore) CountLines(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Model(&CartLineModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// InsertUser registers a user. Duplicate usernames yield ErrUsernameTaken.
func (s *GormStore) InsertUser(ctx context.Context, u domain.User) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	model := userToModel(u)
	if err := db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}

// FindUserByUsername looks up a user by exact, case-sensitive username.
func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (domain.User, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.User{}, false, err
	}
	var model UserModel
	if err := db.Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func lineFromModel(m CartLineModel) domain.CartLine {
	return domain.CartLine{
		ID:       m.ID,
		Title:    m.Title,
		Quantity: m.Quantity,
	}
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:        u.ID,
		Username:  u.Username,
		Password:  u.Password,
		CreatedAt: u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		Username:  m.Username,
		Password:  m.Password,
		CreatedAt: m.CreatedAt,
	}
}
