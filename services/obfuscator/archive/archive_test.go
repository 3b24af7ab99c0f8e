// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestPutGet(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	stored, err := s.Put(ctx, Record{
		Number: "34",
		Depth:  2,
		Text:   "(68)/(2)",
		TeX:    `\frac{68}{2}`,
		Nodes:  3,
		Height: 1,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	got, err := s.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, "34", got.Number)
	assert.Equal(t, "(68)/(2)", got.Text)
	assert.Equal(t, `\frac{68}{2}`, got.TeX)
	assert.Equal(t, 3, got.Nodes)
	assert.True(t, stored.CreatedAt.Equal(got.CreatedAt))
}

func TestGet_NotFound(t *testing.T) {
	s := openMemory(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		rec, err := s.Put(ctx, Record{Number: fmt.Sprint(i)})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
		// v7 IDs sort by millisecond.
		time.Sleep(2 * time.Millisecond)
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, rec := range all {
		assert.Equal(t, ids[len(ids)-1-i], rec.ID)
	}

	top, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "4", top[0].Number)
	assert.Equal(t, "3", top[1].Number)
}

func TestList_Empty(t *testing.T) {
	s := openMemory(t)
	got, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	rec, err := s.Put(ctx, Record{Number: "7"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, rec.ID))
	require.NoError(t, s.Delete(ctx, rec.ID))

	_, err = s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelledContext(t *testing.T) {
	s := openMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, Record{Number: "1"})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.List(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose_Idempotent(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Put(context.Background(), Record{Number: "1"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPersistentReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = time.Hour

	s, err := Open(cfg)
	require.NoError(t, err)
	rec, err := s.Put(context.Background(), Record{Number: "600851475143"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "600851475143", got.Number)
	assert.False(t, s.InMemory())
}

func TestGCRunner(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	defer db.Close()

	_, err = NewGCRunner(nil, time.Second, 0.5, nil)
	assert.ErrorContains(t, err, "db must not be nil")
	_, err = NewGCRunner(db, 0, 0.5, nil)
	assert.ErrorContains(t, err, "interval must be positive")
	_, err = NewGCRunner(db, time.Second, 1.5, nil)
	assert.ErrorContains(t, err, "ratio must be between 0 and 1")

	runner, err := NewGCRunner(db, 5*time.Millisecond, 0.5, nil)
	require.NoError(t, err)
	runner.Start()
	runner.Start()
	time.Sleep(20 * time.Millisecond)
	runner.Stop()
	runner.Stop()
}

func TestGCRunner_StopWithoutStart(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	defer db.Close()

	runner, err := NewGCRunner(db, time.Minute, 0.5, nil)
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		runner.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a runner that was never started")
	}

	// Starting after Stop exits immediately.
	runner.Start()
}
