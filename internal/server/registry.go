package server

import "sync"

// Registry is the process-wide map from user id to that user's live
// connections. A user may hold several entries at once (multiple tabs); the
// user's key is dropped with the last connection. Nothing here is persisted:
// a restart drops all live state and clients reconnect.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[*Client]struct{}),
	}
}

func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[c.user.Id] == nil {
		r.conns[c.user.Id] = make(map[*Client]struct{})
	}
	r.conns[c.user.Id][c] = struct{}{}
}

func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients, ok := r.conns[c.user.Id]
	if !ok {
		return
	}

	delete(clients, c)
	if len(clients) == 0 {
		delete(r.conns, c.user.Id)
	}
}

func (r *Registry) ConnectionsFor(userId string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.conns[userId]))
	for c := range r.conns[userId] {
		clients = append(clients, c)
	}

	return clients
}

func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

func (r *Registry) AllClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var clients []*Client
	for _, userClients := range r.conns {
		for c := range userClients {
			clients = append(clients, c)
		}
	}

	return clients
}
