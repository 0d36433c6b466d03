// Package cache implements the Cache Layer (spec.md §4.6): a two-tier
// keyed cache in front of a pluggable loader, decoupled from both the
// shape of the cached artifact and the Session Store that calls it.
//
// Tier 1 is an in-memory map guarded by its own mutex; a separate load
// mutex serializes loader calls so concurrent callers for the same key
// converge on one loader invocation.
// Tier 2 is a pair of on-disk files per key (disk.go) indexed by a small
// sqlite table (index.go) so existence checks never require opening the
// frame blob. Grounded on internal/lidar/recorder/recorder.go's
// header+chunk+index layout, generalized from "append frames over time"
// to "write the whole built session once."
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/banshee-data/raceplay.report/internal/errs"
	"github.com/banshee-data/raceplay.report/internal/obslog"
	"github.com/banshee-data/raceplay.report/internal/session"
)

var log = obslog.For(obslog.ComponentCache)

// Loader builds a session from scratch. Supplied by the caller (the
// Session Store); the Cache Layer never knows how a session is built.
type Loader func(ctx context.Context, key session.Key) (*session.Session, error)

// Cache is the two-tier cache described in spec.md §4.6.
type Cache struct {
	dir string
	idx *Index

	loadMu sync.Mutex // the per-process load mutex (spec.md §4.6 contract step 3)

	mu  sync.Mutex // guards mem only
	mem map[session.Key]*session.Session
}

// New opens (creating if necessary) the sqlite index under dir and
// returns a ready Cache. dir is also where Tier 2's header/frame files
// live.
func New(dir string) (*Cache, error) {
	idx, err := OpenIndex(dir)
	if err != nil {
		return nil, errs.Cache("open_index", err)
	}
	return &Cache{
		dir: dir,
		idx: idx,
		mem: make(map[session.Key]*session.Session),
	}, nil
}

// Close releases the sqlite index handle.
func (c *Cache) Close() error {
	return c.idx.Close()
}

// DB exposes the underlying sqlite handle backing the cache index, for
// read-only inspection (e.g. a tailsql console) by the server binary.
// Callers must not write through this handle; Upsert/Delete/Lookup on
// Index are the only sanctioned writers.
func (c *Cache) DB() *sql.DB {
	return c.idx.db
}

// GetCached implements spec.md §4.6's get_cached(key, loader, refresh)
// contract exactly:
//  1. refresh=false and key present in memory -> return it.
//  2. refresh=false and a disk file exists -> load, populate memory, return.
//  3. Else acquire the load mutex, re-check 1 and 2, then invoke loader,
//     store to memory, write-through to disk asynchronously (fire-and-forget;
//     disk write failure logs but does not fail the call), and return.
func (c *Cache) GetCached(ctx context.Context, key session.Key, loader Loader, refresh bool) (*session.Session, error) {
	if !refresh {
		if sess, ok := c.lookupMem(key); ok {
			return sess, nil
		}
		if sess, ok := c.loadFromDisk(key); ok {
			c.storeMem(key, sess)
			return sess, nil
		}
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if !refresh {
		if sess, ok := c.lookupMem(key); ok {
			return sess, nil
		}
		if sess, ok := c.loadFromDisk(key); ok {
			c.storeMem(key, sess)
			return sess, nil
		}
	}

	sess, err := loader(ctx, key)
	if err != nil {
		return nil, err
	}
	c.storeMem(key, sess)

	// Write-through is fire-and-forget: the caller must never block on
	// disk I/O, and a write failure falls back to in-memory-only per
	// spec.md §4.6/§7.
	go c.writeThrough(key, sess)

	return sess, nil
}

// Clear evicts key from both tiers (spec.md §4.6: "eviction is explicit
// via clear"). Missing entries in either tier are not an error.
func (c *Cache) Clear(key session.Key) error {
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()

	if err := deleteFromDisk(c.dir, key); err != nil {
		return errs.Cache("clear_disk", err)
	}
	if err := c.idx.Delete(key); err != nil {
		return errs.Cache("clear_index", err)
	}
	return nil
}

func (c *Cache) lookupMem(key session.Key) (*session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.mem[key]
	return sess, ok
}

func (c *Cache) storeMem(key session.Key, sess *session.Session) {
	c.mu.Lock()
	c.mem[key] = sess
	c.mu.Unlock()
}

// loadFromDisk answers "does a valid disk entry exist" via the sqlite
// index first (cheap, no file open), then reads the header+frame files
// only if the index says they should be there.
func (c *Cache) loadFromDisk(key session.Key) (*session.Session, bool) {
	entry, ok, err := c.idx.Lookup(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("cache index lookup failed; falling back to recompute")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	sess, err := readSessionFromDisk(c.dir, key, entry)
	if err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("cache disk read failed; falling back to recompute")
		return nil, false
	}
	return sess, true
}

func (c *Cache) writeThrough(key session.Key, sess *session.Session) {
	entry, err := writeSessionToDisk(c.dir, key, sess)
	if err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("cache write-through failed")
		return
	}
	if err := c.idx.Upsert(key, entry); err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("cache index upsert failed")
		return
	}
	log.Debug().Str("key", key.String()).Int64("bytes", entry.Size).Msg("cache write-through complete")
}

func headerPath(dir string, key session.Key) string {
	return fmt.Sprintf("%s/%s_telemetry.header.json", dir, key.String())
}

func framesPath(dir string, key session.Key) string {
	return fmt.Sprintf("%s/%s_telemetry.frames.bin", dir, key.String())
}
