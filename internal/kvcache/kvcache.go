// Copyright 2026 The Autopkgtest Admission Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kvcache is a persistent string→string map backed by a single
// JSON file. Several engine processes share one cache file, so every
// operation takes an advisory file lock for its duration: shared for
// reads, exclusive for the read-modify-write of mutations. This is the
// only cross-process synchronization in the whole engine.
package kvcache

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/danjacques/gofslock/fslock"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

// lockHeldDelay is how long to wait between acquisition attempts when
// another process holds the lock.
const lockHeldDelay = 10 * time.Millisecond

// Cache is a file-backed key-value store. The zero value is not usable;
// call New.
type Cache struct {
	path     string
	lockPath string
}

// New returns a cache backed by the file at path, creating it as an
// empty JSON object if it does not exist yet.
func New(path string) (*Cache, error) {
	c := &Cache{path: path, lockPath: path + ".lock"}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
			return nil, errors.Annotate(err, "creating cache file").Err()
		}
	} else if err != nil {
		return nil, errors.Annotate(err, "probing cache file").Err()
	}
	return c, nil
}

func blocker(ctx context.Context) fslock.Blocker {
	return func() error {
		logging.Debugf(ctx, "cache lock is held, retrying in %v", lockHeldDelay)
		clock.Sleep(ctx, lockHeldDelay)
		return ctx.Err()
	}
}

func (c *Cache) load() (map[string]string, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, errors.Annotate(err, "reading cache file").Err()
	}
	data := map[string]string{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Annotate(err, "decoding cache file %s", c.path).Err()
	}
	return data, nil
}

func (c *Cache) store(data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	// Rewrite in place: replacing the file would detach concurrent
	// lock holders from the inode they locked.
	if err := os.WriteFile(c.path, raw, 0644); err != nil {
		return errors.Annotate(err, "writing cache file").Err()
	}
	return nil
}

// Get returns the value stored under key, with ok reporting whether the
// key is present.
func (c *Cache) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = fslock.WithSharedBlocking(c.lockPath, blocker(ctx), func() error {
		data, err := c.load()
		if err != nil {
			return err
		}
		value, ok = data[key]
		return nil
	})
	return value, ok, err
}

// Set stores value under key, replacing any previous value.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	return fslock.WithBlocking(c.lockPath, blocker(ctx), func() error {
		data, err := c.load()
		if err != nil {
			return err
		}
		data[key] = value
		return c.store(data)
	})
}

// Delete removes key from the cache. Deleting an absent key is a no-op.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return fslock.WithBlocking(c.lockPath, blocker(ctx), func() error {
		data, err := c.load()
		if err != nil {
			return err
		}
		if _, ok := data[key]; !ok {
			return nil
		}
		delete(data, key)
		return c.store(data)
	})
}

// Clear resets the cache to an empty map.
func (c *Cache) Clear(ctx context.Context) error {
	return fslock.WithBlocking(c.lockPath, blocker(ctx), func() error {
		return c.store(map[string]string{})
	})
}
