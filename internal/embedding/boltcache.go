package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketEmbeddings = []byte("embeddings")

// BoltCache persists embeddings across runs in a bbolt file. Keys are content hashes
// prefixed with the provider fingerprint so switching models never serves stale vectors.
type BoltCache struct {
	db *bbolt.DB
}

// OpenBoltCache opens (or creates) the cache file at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEmbeddings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketEmbeddings, err)
	}
	return &BoltCache{db: db}, nil
}

// Get returns the stored embedding for key.
func (c *BoltCache) Get(key string) ([]float32, bool, error) {
	var emb []float32
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEmbeddings).Get([]byte(key))
		if data == nil {
			return nil
		}
		emb = decodeFloats(data)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return emb, emb != nil, nil
}

// Put stores the embedding for key.
func (c *BoltCache) Put(key string, emb []float32) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).Put([]byte(key), encodeFloats(emb))
	})
}

// Count returns the number of stored embeddings.
func (c *BoltCache) Count() (int, error) {
	var n int
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (c *BoltCache) Close() error {
	return c.db.Close()
}

func encodeFloats(v []float32) []byte {
	out := make([]byte, 0, len(v)*4)
	for _, f := range v {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

// decodeFloats copies out of data; bbolt memory is only valid inside the transaction.
func decodeFloats(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
