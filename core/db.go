package core

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

const (
	DialectSQLite = "sqlite3"
	DialectMySQL  = "mysql"
)

const pingTimeout = 5 * time.Second

type SQLiteDBOption struct {
	// mode can be ro | rw | rwc | memory
	Mode string
	// cache can be shared | private
	Cache string
	// JournalMode be DELETE | TRUNCATE | PERSIST | MEMORY | WAL | OFF
	JournalMode string
}

// DSN returns the sqlite3 connection string for file.
func (config *SQLiteDBOption) DSN(file string) string {
	var sb strings.Builder
	sb.WriteString("file:")
	sb.WriteString(file)
	if config == nil {
		return sb.String()
	}

	params := make([]string, 0, 3)
	if config.Mode != "" {
		params = append(params, "mode="+config.Mode)
	}
	if config.Cache != "" {
		params = append(params, "cache="+config.Cache)
	}
	if config.JournalMode != "" {
		params = append(params, "_journal_mode="+config.JournalMode)
	}
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(file, "?") {
			sep = "&"
		}
		sb.WriteString(sep)
		sb.WriteString(strings.Join(params, "&"))
	}
	return sb.String()
}

type MySQLDBOption struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

func (o MySQLDBOption) config(withDB bool) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if withDB {
		cfg.DBName = o.Name
	}
	return cfg
}

// DB is a database handle that knows which goose dialect its migrations use.
type DB struct {
	*sql.DB
	dialect string
}

func (db *DB) Dialect() string {
	return db.dialect
}

// NewSQLiteDB opens the sqlite database at file and verifies it can be reached.
func NewSQLiteDB(file string, config *SQLiteDBOption) (*DB, error) {
	d, err := sql.Open(DialectSQLite, config.DSN(file))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	// sqlite allows a single writer at a time.
	d.SetMaxOpenConns(1)
	return ping(&DB{DB: d, dialect: DialectSQLite})
}

// NewMySQLDB opens the mysql database described by option and verifies it can be reached.
func NewMySQLDB(option MySQLDBOption) (*DB, error) {
	d, err := sql.Open(DialectMySQL, option.config(true).FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	d.SetConnMaxLifetime(3 * time.Minute)
	d.SetMaxOpenConns(10)
	d.SetMaxIdleConns(10)
	return ping(&DB{DB: d, dialect: DialectMySQL})
}

// EnsureMySQLDatabase creates the database named in option when it does not exist yet.
func EnsureMySQLDatabase(ctx context.Context, option MySQLDBOption) error {
	d, err := sql.Open(DialectMySQL, option.config(false).FormatDSN())
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	defer d.Close()

	name := strings.ReplaceAll(option.Name, "`", "``")
	if _, err := d.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS `"+name+"`"); err != nil {
		return fmt.Errorf("ExecContext(create database): %w", err)
	}
	return nil
}

func ping(db *DB) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return db, nil
}

// goose keeps its configuration in package state.
var migrateMu sync.Mutex

// Migrate applies every pending migration found in dir of migrations.
func (db *DB) Migrate(migrations fs.FS, dir string, logger *zap.Logger) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{logger.Sugar()})

	if err := goose.SetDialect(db.dialect); err != nil {
		return fmt.Errorf("SetDialect: %w", err)
	}

	if err := goose.Up(db.DB, dir); err != nil {
		return fmt.Errorf("goose.Up: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through zap.
type gooseLogger struct {
	*zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.Infof(strings.TrimSuffix(format, "\n"), v...)
}
