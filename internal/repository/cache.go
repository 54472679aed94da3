package repository

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"prompt-chaining/backend/pkg/models"
)

const latestWorkflowKey = "workflow:latest"

// CachedWorkflowStore keeps the latest definition in memory for ttl so that
// runs do not hit the database every time. Writes through this store
// refresh the cache immediately; writes made by other processes become
// visible once the entry expires.
type CachedWorkflowStore struct {
	WorkflowStore
	cache *gocache.Cache

	// replaceMu serializes ReplaceAll so the cached entry matches the last
	// database write.
	replaceMu sync.Mutex
	// mu guards generation and orders cache fills against replaces. A fill
	// is dropped when a replace began after its load started.
	mu         sync.Mutex
	generation uint64
}

// NewCachedWorkflowStore wraps store with a cache of the given ttl.
func NewCachedWorkflowStore(store WorkflowStore, ttl time.Duration) *CachedWorkflowStore {
	return &CachedWorkflowStore{
		WorkflowStore: store,
		cache:         gocache.New(ttl, 2*ttl),
	}
}

// ReplaceAll writes through and caches the new definition.
func (c *CachedWorkflowStore) ReplaceAll(ctx context.Context, workflow *models.Workflow) error {
	c.replaceMu.Lock()
	defer c.replaceMu.Unlock()

	c.mu.Lock()
	c.generation++
	c.cache.Delete(latestWorkflowKey)
	c.mu.Unlock()

	if err := c.WorkflowStore.ReplaceAll(ctx, workflow); err != nil {
		return err
	}

	c.mu.Lock()
	c.generation++
	c.cache.SetDefault(latestWorkflowKey, cloneWorkflow(workflow))
	c.mu.Unlock()
	return nil
}

// LoadLatest serves the cached definition when present.
func (c *CachedWorkflowStore) LoadLatest(ctx context.Context) (*models.Workflow, error) {
	if v, ok := c.cache.Get(latestWorkflowKey); ok {
		return cloneWorkflow(v.(*models.Workflow)), nil
	}

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	workflow, err := c.WorkflowStore.LoadLatest(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generation == gen {
		c.cache.SetDefault(latestWorkflowKey, cloneWorkflow(workflow))
	}
	c.mu.Unlock()
	return workflow, nil
}
