package tracklog

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	_ "modernc.org/sqlite"
)

var (
	// ErrNoConfigRecord reports a recording file without a stored config.
	ErrNoConfigRecord = errors.New("no config record in chunk file")
	// ErrChunkNotFound reports a read of a chunk index that does not exist.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrCorruptChunkStore reports a structurally inconsistent chunk table.
	ErrCorruptChunkStore = errors.New("corrupt chunk store")
)

// ChunkFileConfig configures how a recording file is opened.
type ChunkFileConfig struct {
	// ReadOnly opens the file for replay or bulk decode; no schema is created
	ReadOnly bool
	// BusyTimeout in milliseconds. Default: 5000
	BusyTimeout int
	// JournalMode (WAL, DELETE, etc.). Default: WAL
	JournalMode string
	// Synchronous mode (OFF, NORMAL, FULL). Default: NORMAL
	Synchronous string
	// Encryption optionally encrypts chunk blobs at rest
	Encryption *EncryptionConfig
}

// DefaultChunkFileConfig returns sensible defaults for a writable file.
func DefaultChunkFileConfig() ChunkFileConfig {
	return ChunkFileConfig{
		BusyTimeout: 5000,
		JournalMode: "WAL",
		Synchronous: "NORMAL",
	}
}

// ChunkSpan is the time interval one chunk covers, in seconds since
// recording start. Intervals are half-open [Start, End).
type ChunkSpan struct {
	Index int
	Start float64
	End   float64
}

// ChunkFile is a recording file: a SQLite database holding one row per chunk
// plus a small metadata table. Chunk blobs are snappy-compressed and
// optionally encrypted.
type ChunkFile struct {
	db   *sql.DB
	path string
	enc  *Encryptor
}

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	idx INTEGER PRIMARY KEY,
	start_time REAL NOT NULL,
	end_time REAL NOT NULL,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT
);
`

const metaSaltKey = "encryption_salt"

// OpenChunkFile opens or creates a recording file at path.
func OpenChunkFile(path string, cfg ChunkFileConfig) (*ChunkFile, error) {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5000
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.Synchronous == "" {
		cfg.Synchronous = "NORMAL"
	}

	var dsn string
	if cfg.ReadOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro&_busy_timeout=%d", path, cfg.BusyTimeout)
	} else {
		dsn = fmt.Sprintf("%s?_journal_mode=%s&_synchronous=%s&_busy_timeout=%d",
			path, cfg.JournalMode, cfg.Synchronous, cfg.BusyTimeout)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open chunk file: %w", err)
	}

	// The writer goroutine owns the handle; a single connection keeps
	// statement ordering strict.
	db.SetMaxOpenConns(1)

	if !cfg.ReadOnly {
		if _, err := db.Exec(chunkSchema); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	f := &ChunkFile{db: db, path: path}
	if err := f.initEncryption(cfg); err != nil {
		db.Close()
		return nil, err
	}
	return f, nil
}

// initEncryption builds the blob encryptor. For password-derived keys the
// salt is persisted in the meta table on first use and read back afterwards.
func (f *ChunkFile) initEncryption(cfg ChunkFileConfig) error {
	if cfg.Encryption == nil || !cfg.Encryption.Enabled {
		return nil
	}
	ec := cfg.Encryption

	if len(ec.Key) > 0 {
		enc, err := NewEncryptorWithKey(ec.Key)
		if err != nil {
			return err
		}
		f.enc = enc
		return nil
	}
	if ec.KeyPassword == "" {
		return errors.New("encryption enabled but no key or password provided")
	}

	var saltHex string
	err := f.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaSaltKey).Scan(&saltHex)
	switch {
	case err == nil:
		salt, err := hex.DecodeString(saltHex)
		if err != nil {
			return fmt.Errorf("decode stored salt: %w", err)
		}
		enc, err := NewEncryptorWithSalt(ec.KeyPassword, salt)
		if err != nil {
			return err
		}
		f.enc = enc
		return nil
	case errors.Is(err, sql.ErrNoRows):
		if cfg.ReadOnly {
			return errors.New("encrypted chunk file has no stored salt")
		}
		enc, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: ec.KeyPassword})
		if err != nil {
			return err
		}
		if _, err := f.db.Exec(
			`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`,
			metaSaltKey, hex.EncodeToString(enc.Salt()),
		); err != nil {
			return fmt.Errorf("store salt: %w", err)
		}
		f.enc = enc
		return nil
	default:
		return fmt.Errorf("read stored salt: %w", err)
	}
}

// Path returns the file path the store was opened with.
func (f *ChunkFile) Path() string {
	return f.path
}

// AppendChunk stores one chunk blob under the given index and time span.
func (f *ChunkFile) AppendChunk(index int, start, end float64, blob []byte) error {
	data := snappy.Encode(nil, blob)
	if f.enc != nil {
		var err error
		data, err = f.enc.Encrypt(data)
		if err != nil {
			return fmt.Errorf("encrypt chunk %d: %w", index, err)
		}
	}
	_, err := f.db.Exec(
		`INSERT INTO chunks (idx, start_time, end_time, data) VALUES (?, ?, ?, ?)`,
		index, start, end, data,
	)
	if err != nil {
		return fmt.Errorf("append chunk %d: %w", index, err)
	}
	return nil
}

// ReadChunk returns the decompressed blob of one chunk.
func (f *ChunkFile) ReadChunk(index int) ([]byte, error) {
	var data []byte
	err := f.db.QueryRow(`SELECT data FROM chunks WHERE idx = ?`, index).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: index %d", ErrChunkNotFound, index)
	}
	if err != nil {
		return nil, fmt.Errorf("read chunk %d: %w", index, err)
	}
	if f.enc != nil {
		data, err = f.enc.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("decrypt chunk %d: %w", index, err)
		}
	}
	blob, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decompress chunk %d: %w", index, err)
	}
	return blob, nil
}

// Spans returns the time spans of all chunks in index order.
func (f *ChunkFile) Spans() ([]ChunkSpan, error) {
	rows, err := f.db.Query(`SELECT idx, start_time, end_time FROM chunks ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("list chunk spans: %w", err)
	}
	defer rows.Close()

	var spans []ChunkSpan
	for rows.Next() {
		var s ChunkSpan
		if err := rows.Scan(&s.Index, &s.Start, &s.End); err != nil {
			return nil, fmt.Errorf("scan chunk span: %w", err)
		}
		spans = append(spans, s)
	}
	return spans, rows.Err()
}

// Count returns the number of stored chunks.
func (f *ChunkFile) Count() (int, error) {
	var n int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// SetConfigRecord stores the sensor-group config JSON, overwriting any
// previous value.
func (f *ChunkFile) SetConfigRecord(record string) error {
	_, err := f.db.Exec(
		`INSERT OR REPLACE INTO meta (key, value) VALUES ('config', ?)`, record)
	if err != nil {
		return fmt.Errorf("store config record: %w", err)
	}
	return nil
}

// ConfigRecord returns the stored config JSON.
func (f *ChunkFile) ConfigRecord() (string, error) {
	var record string
	err := f.db.QueryRow(`SELECT value FROM meta WHERE key = 'config'`).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoConfigRecord
	}
	if err != nil {
		return "", fmt.Errorf("read config record: %w", err)
	}
	return record, nil
}

// CheckIntegrity verifies the chunk sequence: gapless indices starting at
// zero, non-inverted spans, and each chunk starting where the previous ended.
func (f *ChunkFile) CheckIntegrity() error {
	spans, err := f.Spans()
	if err != nil {
		return err
	}
	for i, s := range spans {
		if s.Index != i {
			return fmt.Errorf("%w: chunk %d has index %d", ErrCorruptChunkStore, i, s.Index)
		}
		if s.End < s.Start {
			return fmt.Errorf("%w: chunk %d spans [%g, %g)", ErrCorruptChunkStore, i, s.Start, s.End)
		}
		if i > 0 && s.Start != spans[i-1].End {
			return fmt.Errorf("%w: chunk %d starts at %g, previous ended at %g",
				ErrCorruptChunkStore, i, s.Start, spans[i-1].End)
		}
	}
	return nil
}

// Close closes the underlying database.
func (f *ChunkFile) Close() error {
	return f.db.Close()
}
