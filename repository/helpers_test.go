package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-autopost/core/database"
	"github.com/AzielCF/az-autopost/infrastructure/sheets"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newGormRepo(t *testing.T) (*GormRepository, *civiltime.FixedClock) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name), false)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	clock := civiltime.NewFixedClock(testStart)
	repo := NewGormRepository(db, clock, "local", "test-node")
	require.NoError(t, repo.Init(context.Background()))
	return repo, clock
}

// memTables is an in-memory sheets.TableClient.
type memTables struct {
	mu     sync.Mutex
	tables map[string]*sheets.Table
	fail   error
}

func newMemTables() *memTables {
	return &memTables{tables: make(map[string]*sheets.Table)}
}

func (m *memTables) EnsureTable(_ context.Context, name string, headers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = &sheets.Table{Headers: append([]string(nil), headers...)}
	}
	return nil
}

func (m *memTables) Read(_ context.Context, name string) (sheets.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return sheets.Table{}, m.fail
	}
	t, ok := m.tables[name]
	if !ok {
		return sheets.Table{}, nil
	}
	out := sheets.Table{Headers: t.Headers}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, sheets.Row{Number: r.Number, Values: merge(r.Values, nil)})
	}
	return out, nil
}

func (m *memTables) Append(_ context.Context, name string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	t, ok := m.tables[name]
	if !ok {
		t = &sheets.Table{}
		m.tables[name] = t
	}
	t.Rows = append(t.Rows, sheets.Row{Number: len(t.Rows) + 2, Values: merge(values, nil)})
	return nil
}

func (m *memTables) UpdateRow(_ context.Context, name string, number int, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	t := m.tables[name]
	t.Rows[number-2].Values = merge(values, nil)
	return nil
}

func (m *memTables) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}
