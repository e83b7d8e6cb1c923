package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	sharedCache "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/cache"
)

// DummyCache es un mock de caché en memoria, genérico y seguro para concurrencia.
// Puede almacenar cualquier tipo de objeto serializable a JSON.
type DummyCache struct {
	store map[string][]byte // JSON, igual que Redis
	mu    sync.Mutex

	Gets, Sets, Deletes int
}

// Verificación estática para asegurar que implementa la interfaz compartida.
var _ sharedCache.Cache = (*DummyCache)(nil)

func NewDummyCache() *DummyCache {
	return &DummyCache{
		store: make(map[string][]byte),
	}
}

func (c *DummyCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++

	data, ok := c.store[key]
	if !ok {
		return false, nil // Cache miss
	}

	// ✅ Deserializa los bytes en el puntero 'dest' de cualquier tipo.
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil // Cache hit
}

func (c *DummyCache) Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error {
	c.mu.Lock() // Bloqueo de escritura
	defer c.mu.Unlock()
	c.Sets++

	// ✅ Serializa el valor (de cualquier tipo) a JSON antes de guardarlo.
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}

	c.store[key] = data
	return nil
}

func (c *DummyCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock() // Bloqueo de escritura
	defer c.mu.Unlock()
	c.Deletes++
	delete(c.store, key)
	return nil
}

// Has indica si la clave está en caché, sin contar como lectura.
func (c *DummyCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[key]
	return ok
}

// Counts devuelve los contadores de operaciones de forma segura.
func (c *DummyCache) Counts() (gets, sets, deletes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Gets, c.Sets, c.Deletes
}
