package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DataShades/fpx/internal/models"
)

// MemoryStore implements Store in process memory.
// This is useful for testing and development
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]models.Ticket
	clients map[string]models.Client // by name
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]models.Ticket),
		clients: make(map[string]models.Client),
	}
}

func (ms *MemoryStore) Migrate(context.Context) error { return nil }
func (ms *MemoryStore) Ping(context.Context) error    { return nil }
func (ms *MemoryStore) Close() error                  { return nil }

func (ms *MemoryStore) GetTicket(_ context.Context, id string) (*models.Ticket, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	t, exists := ms.tickets[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (ms *MemoryStore) InsertTicket(_ context.Context, t *models.Ticket) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.tickets[t.ID] = *t
	return nil
}

func (ms *MemoryStore) DeleteTicket(_ context.Context, id string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tickets[id]; !exists {
		return false, nil
	}
	delete(ms.tickets, id)
	return true, nil
}

func (ms *MemoryStore) SetTicketAvailable(_ context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, exists := ms.tickets[id]
	if !exists {
		return ErrNotFound
	}
	t.IsAvailable = true
	ms.tickets[id] = t
	return nil
}

func (ms *MemoryStore) ListTickets(_ context.Context, offset, limit int) ([]models.Ticket, int64, error) {
	ms.mu.RLock()
	all := make([]models.Ticket, 0, len(ms.tickets))
	for _, t := range ms.tickets {
		all = append(all, t)
	}
	ms.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return []models.Ticket{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (ms *MemoryStore) DeleteTicketsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var n int64
	for id, t := range ms.tickets {
		if t.CreatedAt.Before(cutoff) {
			delete(ms.tickets, id)
			n++
		}
	}
	return n, nil
}

func (ms *MemoryStore) DeleteAllTickets(_ context.Context) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	n := int64(len(ms.tickets))
	ms.tickets = make(map[string]models.Ticket)
	return n, nil
}

func (ms *MemoryStore) FindClientByName(_ context.Context, name string) (*models.Client, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	c, exists := ms.clients[name]
	if !exists {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (ms *MemoryStore) FindClientByID(_ context.Context, id string) (*models.Client, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, c := range ms.clients {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (ms *MemoryStore) InsertClient(_ context.Context, c *models.Client) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.clients[c.Name]; exists {
		return ErrDuplicate
	}
	ms.clients[c.Name] = *c
	return nil
}

func (ms *MemoryStore) DeleteClient(_ context.Context, name string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.clients[name]; !exists {
		return false, nil
	}
	delete(ms.clients, name)
	return true, nil
}

func (ms *MemoryStore) UpdateClientID(_ context.Context, name, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	c, exists := ms.clients[name]
	if !exists {
		return ErrNotFound
	}
	c.ID = id
	ms.clients[name] = c
	return nil
}

func (ms *MemoryStore) ListClients(_ context.Context) ([]models.Client, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]models.Client, 0, len(ms.clients))
	for _, c := range ms.clients {
		out = append(out, c)
	}
	sortClients(out)
	return out, nil
}

func sortClients(clients []models.Client) {
	sort.Slice(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })
}
