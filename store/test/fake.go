// Package test provides an in-memory session store for package tests.
package test

import (
	"context"
	"errors"
	"sync"

	"github.com/hrygo/relayhub/store"
)

// FakeDriver is an in-memory store.Driver with the same list semantics as the
// Redis driver. Safe for concurrent use.
type FakeDriver struct {
	mu    sync.Mutex
	lists map[string][]string

	// FailAll makes every operation return FailErr, simulating an
	// unreachable store.
	FailAll bool
	// FailDelete makes only Delete fail, for exercising partial-teardown
	// paths.
	FailDelete bool
	FailErr    error
}

// NewFakeDriver creates an empty fake driver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		lists:   make(map[string][]string),
		FailErr: errors.New("store unavailable"),
	}
}

// NewTestingStore creates a store backed by a fresh fake driver.
func NewTestingStore() (*store.Store, *FakeDriver) {
	driver := NewFakeDriver()
	return store.New(driver, nil), driver
}

func (d *FakeDriver) Append(_ context.Context, key string, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAll {
		return d.FailErr
	}
	d.lists[key] = append(d.lists[key], value)
	return nil
}

func (d *FakeDriver) ReadRange(_ context.Context, key string, start, end int64) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAll {
		return nil, d.FailErr
	}
	list := d.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if n == 0 || start > end {
		return nil, nil
	}
	out := make([]string, end-start+1)
	copy(out, list[start:end+1])
	return out, nil
}

func (d *FakeDriver) ReplaceLast(_ context.Context, key string, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAll {
		return d.FailErr
	}
	list := d.lists[key]
	if len(list) == 0 {
		return store.ErrEmptyLog
	}
	list[len(list)-1] = value
	return nil
}

func (d *FakeDriver) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAll || d.FailDelete {
		return d.FailErr
	}
	delete(d.lists, key)
	return nil
}

func (d *FakeDriver) Exists(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAll {
		return false, d.FailErr
	}
	_, ok := d.lists[key]
	return ok, nil
}

func (d *FakeDriver) Ping(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAll {
		return d.FailErr
	}
	return nil
}

func (d *FakeDriver) Close() error { return nil }

// Len reports the number of elements under key.
func (d *FakeDriver) Len(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lists[key])
}
