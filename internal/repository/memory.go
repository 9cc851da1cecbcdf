package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/stockpilot/internal/model"
	"github.com/mmeshcher/stockpilot/internal/pos"
)

// MemoryRepository хранит сессии и чеки в памяти процесса. Используется без DATABASE_URI и в тестах.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*pos.Session
	receipts map[string][]model.Receipt
}

// NewMemoryRepository создаёт пустое хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*pos.Session),
		receipts: make(map[string][]model.Receipt),
	}
}

// Create сохраняет копию новой сессии.
func (r *MemoryRepository) Create(_ context.Context, s *pos.Session) error {
	cp, err := cloneSession(s)
	if err != nil {
		return fmt.Errorf("clone session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, s.ID)
	}
	r.sessions[s.ID] = cp
	return nil
}

// Get возвращает копию сессии.
func (r *MemoryRepository) Get(_ context.Context, id string) (*pos.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s)
}

// Update применяет fn к копии сессии и сохраняет её, только если fn завершилась без ошибки.
func (r *MemoryRepository) Update(_ context.Context, id string, fn func(s *pos.Session) error) (*pos.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	working, err := cloneSession(stored)
	if err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	if err := fn(working); err != nil {
		return nil, err
	}

	r.sessions[id] = working
	return cloneSession(working)
}

// Delete удаляет сессию.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// DeleteIdle удаляет сессии, не менявшиеся с момента before.
func (r *MemoryRepository) DeleteIdle(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if s.IdleSince(before) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// SaveReceipt добавляет чек. Повтор по тому же SaleID игнорируется.
func (r *MemoryRepository) SaveReceipt(_ context.Context, rc model.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.receipts[rc.SessionID] {
		if existing.SaleID == rc.SaleID {
			return nil
		}
	}
	r.receipts[rc.SessionID] = append(r.receipts[rc.SessionID], rc)
	return nil
}

// ListReceipts возвращает не более limit последних чеков сессии, новые первыми.
func (r *MemoryRepository) ListReceipts(_ context.Context, sessionID string, limit int) ([]model.Receipt, error) {
	r.mu.RLock()
	src := r.receipts[sessionID]
	res := make([]model.Receipt, len(src))
	copy(res, src)
	r.mu.RUnlock()

	// Стабильная сортировка сохраняет обратный порядок вставки для одинакового времени.
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// Close ничего не освобождает и нужен для общего контракта хранилищ.
func (r *MemoryRepository) Close() error {
	return nil
}
