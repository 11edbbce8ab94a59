package engine

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"voicegen/internal/pkg/voicegen/apperr"
)

// LoadedEngine is the single live engine instance owned by a Cache.
type LoadedEngine struct {
	ModelID string
	Handle  Handle
	Device  Device
}

// Cache holds at most one loaded engine. Requesting a different model id
// loads it and closes the previous instance. Cache is not safe for
// concurrent use; requests are expected to be serialised by the caller.
type Cache struct {
	loader   Loader
	selector DeviceSelector
	entries  *lru.Cache[string, *LoadedEngine]
	loads    int
}

func NewCache(loader Loader, selector DeviceSelector) *Cache {
	entries, err := lru.NewWithEvict(1, func(modelID string, e *LoadedEngine) {
		if err := e.Handle.Close(); err != nil {
			log.Warn().Err(err).Str("model", modelID).Msg("Failed to close evicted engine")
			return
		}
		log.Debug().Str("model", modelID).Msg("Engine discarded")
	})
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Cache{
		loader:   loader,
		selector: selector,
		entries:  entries,
	}
}

// Get returns the engine for modelID, loading it on a miss. A failed load
// returns a ModelLoad error and leaves the cached entry untouched.
func (c *Cache) Get(ctx context.Context, modelID string) (*LoadedEngine, error) {
	if e, ok := c.entries.Get(modelID); ok {
		return e, nil
	}

	device := c.selector.Select()
	log.Info().Str("model", modelID).Str("device", string(device)).Msg("Loading model...")

	h, err := c.loader.Load(ctx, modelID, device)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindModelLoad, "load model",
			fmt.Errorf("could not load %s: %w", modelID, err))
	}
	if h == nil {
		return nil, apperr.Errorf(apperr.KindModelLoad, "load model", "loader returned no engine for %s", modelID)
	}

	e := &LoadedEngine{ModelID: modelID, Handle: h, Device: device}
	c.entries.Add(modelID, e)
	c.loads++
	return e, nil
}

// Current returns the live engine without loading anything.
func (c *Cache) Current() (*LoadedEngine, bool) {
	keys := c.entries.Keys()
	if len(keys) == 0 {
		return nil, false
	}
	return c.entries.Peek(keys[0])
}

// Device reports the device a load would use now.
func (c *Cache) Device() Device {
	return c.selector.Select()
}

// Loads counts successful loads since creation.
func (c *Cache) Loads() int {
	return c.loads
}

// Close discards the live engine.
func (c *Cache) Close() {
	c.entries.Purge()
}
