package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lorawan-server/lorawan-framesec/pkg/lorawan"
)

// PostgresStore reads session keys from the device_sessions table:
//
//	CREATE TABLE device_sessions (
//	    dev_addr  bytea PRIMARY KEY,
//	    app_s_key text NOT NULL,
//	    nwk_s_key text NOT NULL
//	);
//
// dev_addr is stored most significant byte first.
type PostgresStore struct {
	db           *sql.DB
	codec        *KeyCodec
	queryTimeout time.Duration
}

// NewPostgresStore creates a new PostgreSQL key store
func NewPostgresStore(dsn string, maxOpenConns int, queryTimeout time.Duration, codec *KeyCodec) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if codec == nil {
		codec = &KeyCodec{}
	}

	return &PostgresStore{db: db, codec: codec, queryTimeout: queryTimeout}, nil
}

// GetSessionKeys gets the session keys of devAddr
func (s *PostgresStore) GetSessionKeys(ctx context.Context, devAddr lorawan.DevAddr) (lorawan.SessionKeys, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	query := `
        SELECT app_s_key, nwk_s_key
        FROM device_sessions
        WHERE dev_addr = $1`

	var appSKey, nwkSKey string
	err := s.db.QueryRowContext(ctx, query, devAddr[:]).Scan(&appSKey, &nwkSKey)
	if errors.Is(err, sql.ErrNoRows) {
		return lorawan.SessionKeys{}, ErrNotFound
	}
	if err != nil {
		return lorawan.SessionKeys{}, fmt.Errorf("query device session: %w", err)
	}

	return s.codec.sessionKeys(devAddr, appSKey, nwkSKey)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
