package clients

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrInvalidScope   = errors.New("scope not allowed for client")
	ErrInvalidClient  = errors.New("invalid client metadata")
)

type Repo interface {
	Get(clientID string) (*Client, error)
	List() []*Client
}

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo holds the clients registered at startup
type InMemoryRepo struct {
	clients map[string]*Client
	lock    sync.RWMutex
}

func NewInMemoryRepo(clients ...*Client) *InMemoryRepo {
	r := &InMemoryRepo{
		clients: make(map[string]*Client, len(clients)),
	}
	for _, c := range clients {
		r.clients[c.ID] = c
	}
	return r
}

func (r *InMemoryRepo) Upsert(client *Client) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.clients[client.ID] = client
}

func (r *InMemoryRepo) Get(clientID string) (*Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return client, nil
}

func (r *InMemoryRepo) List() []*Client {
	r.lock.RLock()
	defer r.lock.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, v := range r.clients {
		clients = append(clients, v)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ID < clients[j].ID
	})
	return clients
}
