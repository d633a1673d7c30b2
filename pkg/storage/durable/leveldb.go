package durable

import (
	"bytes"
	"errors"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// MemoryPath opens a leveldb instance that lives only in process memory.
const MemoryPath = ":memory:"

var entryPrefix = []byte("e:")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is the on-disk form of a cache entry.
type Record struct {
	CreatedAt  time.Time           `json:"createdAt"`
	Source     model.Tier          `json:"source"`
	Count      int                 `json:"count"`
	Collection bool                `json:"collection"`
	Payload    jsoniter.RawMessage `json:"payload"`
}

// LevelDB mirrors cache entries into a leveldb database so they survive restarts.
type LevelDB struct {
	db *leveldb.DB
}

// Open opens (or creates) the database at path, or an in-memory one for MemoryPath.
func Open(path string) (*LevelDB, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == MemoryPath {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (d *LevelDB) Get(key string) (*model.Entry, bool, error) {
	b, err := d.db.Get(dbKey(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var rec Record
	if err = json.Unmarshal(b, &rec); err != nil {
		return nil, false, err
	}
	entry := model.NewEntry(key, []byte(rec.Payload), rec.Source, rec.Count, rec.Collection, rec.CreatedAt)
	return entry, true, nil
}

func (d *LevelDB) Put(entry *model.Entry) error {
	b, err := json.Marshal(Record{
		CreatedAt:  entry.CreatedAt.UTC(),
		Source:     entry.Tier,
		Count:      entry.Count,
		Collection: entry.Collection,
		Payload:    entry.Payload,
	})
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(dbKey(entry.Key), b)
	return d.db.Write(batch, nil)
}

func (d *LevelDB) Delete(key string) error {
	return d.db.Delete(dbKey(key), nil)
}

func (d *LevelDB) Keys(prefix string) ([]string, error) {
	it := d.db.NewIterator(util.BytesPrefix(dbKey(prefix)), nil)
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(bytes.TrimPrefix(it.Key(), entryPrefix)))
	}
	return keys, it.Error()
}

func (d *LevelDB) Close() error {
	return d.db.Close()
}

func dbKey(key string) []byte {
	b := make([]byte, 0, len(entryPrefix)+len(key))
	b = append(b, entryPrefix...)
	return append(b, key...)
}
