package progress

import (
	"context"
	"fmt"
	"sync"
)

// Locker serializes work on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// KeyedMutex is an in-process Locker. Entries are dropped once no caller
// holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(key, e)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

func lockKey(userID, id string) string { return "progress:" + userID + ":" + id }

// moduleLockKey covers every cascade that can complete the module, so
// content and quiz writes in it never race on the module row.
func moduleLockKey(userID, moduleID string) string { return lockKey(userID, "module:"+moduleID) }

// lockCascade serializes writes whose cascade may complete chapterID's module.
func (e *Engine) lockCascade(ctx context.Context, userID, chapterID string) (func(), error) {
	chapter, err := e.catalog.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, fmt.Errorf("get chapter: %w", err)
	}
	return e.locker.Lock(ctx, moduleLockKey(userID, chapter.ModuleID))
}
