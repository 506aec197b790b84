package storage

import (
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// metaPrefix namespaces ledger metadata (head root, height) away from trie
// nodes, which are keyed by their 32-byte hash.
var metaPrefix = []byte("c2e-meta:")

// Database is the key-value store backing the ledger. Metadata is written
// through Put/Get; account state lives in the trie database it exposes.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	TrieDB() *triedb.Database
	Close()
}

type kvDatabase struct {
	disk   ethdb.Database
	trieDB *triedb.Database
}

func newKVDatabase(disk ethdb.Database) *kvDatabase {
	return &kvDatabase{
		disk:   disk,
		trieDB: triedb.NewDatabase(disk, triedb.HashDefaults),
	}
}

func metaKey(key []byte) []byte {
	buf := make([]byte, len(metaPrefix)+len(key))
	copy(buf, metaPrefix)
	copy(buf[len(metaPrefix):], key)
	return buf
}

func (db *kvDatabase) Put(key []byte, value []byte) error {
	return db.disk.Put(metaKey(key), value)
}

func (db *kvDatabase) Get(key []byte) ([]byte, error) {
	return db.disk.Get(metaKey(key))
}

func (db *kvDatabase) Has(key []byte) (bool, error) {
	return db.disk.Has(metaKey(key))
}

func (db *kvDatabase) TrieDB() *triedb.Database {
	return db.trieDB
}

func (db *kvDatabase) Close() {
	_ = db.trieDB.Close()
	_ = db.disk.Close()
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	*kvDatabase
}

func NewMemDB() *MemDB {
	return &MemDB{kvDatabase: newKVDatabase(rawdb.NewMemoryDatabase())}
}

// --- Persistent DB ---

// LevelOptions tunes the LevelDB backend. Zero values fall back to defaults.
type LevelOptions struct {
	CacheMB int
	Handles int
}

// LevelDB is a persistent store backed by LevelDB.
type LevelDB struct {
	*kvDatabase
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string, options LevelOptions) (*LevelDB, error) {
	cache := options.CacheMB
	if cache < 16 {
		cache = 16
	}
	handles := options.Handles
	if handles < 16 {
		handles = 16
	}
	kv, err := gethleveldb.NewCustom(path, "c2e/db/", func(o *opt.Options) {
		o.OpenFilesCacheCapacity = handles
		o.BlockCacheCapacity = cache / 2 * opt.MiB
		o.WriteBuffer = cache / 4 * opt.MiB
	})
	if err != nil {
		return nil, err
	}
	return &LevelDB{kvDatabase: newKVDatabase(rawdb.NewDatabase(kv))}, nil
}
