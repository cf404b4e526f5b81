package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/storage"
)

var (
	// BoltDB bucket names
	bucketDocuments = []byte("documents")
)

// Cache represents BoltDB-backed document state cache
type Cache struct {
	db *bbolt.DB
}

// New creates a new BoltDB cache instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Cache, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	cache := &Cache{db: db}

	// Инициализируем buckets
	if err := cache.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return cache, nil
}

// Close closes the database connection
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// initBuckets создает необходимые buckets если они не существуют
func (c *Cache) initBuckets() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocuments); err != nil {
			return fmt.Errorf("failed to create documents bucket: %w", err)
		}
		return nil
	})
}

// Persist сохраняет полное состояние документа
func (c *Cache) Persist(ctx context.Context, documentID string, state []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDocuments)
		if bucket == nil {
			return storage.ErrStorageClosed
		}
		if err := bucket.Put([]byte(documentID), state); err != nil {
			return fmt.Errorf("failed to persist document state: %w", err)
		}
		return nil
	})
}

// Load возвращает сохраненное состояние документа.
// Возвращает storage.ErrStateNotFound, если состояния нет.
func (c *Cache) Load(ctx context.Context, documentID string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var state []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDocuments)
		if bucket == nil {
			return storage.ErrStorageClosed
		}

		data := bucket.Get([]byte(documentID))
		if data == nil {
			return storage.ErrStateNotFound
		}

		// Копируем: данные bbolt валидны только внутри транзакции
		state = make([]byte, len(data))
		copy(state, data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Delete удаляет сохраненное состояние документа
func (c *Cache) Delete(ctx context.Context, documentID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDocuments)
		if bucket == nil {
			return storage.ErrStorageClosed
		}
		return bucket.Delete([]byte(documentID))
	})
}
