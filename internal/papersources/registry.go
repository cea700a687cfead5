package papersources

import (
	"sync"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// Assignment pairs a source client with the author identifier it should be queried with.
type Assignment struct {
	Tag        domain.SourceTag
	Client     SourceClient
	Identifier string
}

// Registry manages source clients keyed by their tag.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[domain.SourceTag]SourceClient
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[domain.SourceTag]SourceClient),
	}
}

// Register adds a client to the registry, replacing any client with the same tag.
func (r *Registry) Register(client SourceClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Tag()] = client
}

// Get returns the client for tag, or nil if none is registered.
func (r *Registry) Get(tag domain.SourceTag) SourceClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[tag]
}

// Tags returns the registered tags in precedence order.
func (r *Registry) Tags() []domain.SourceTag {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]domain.SourceTag, 0, len(r.clients))
	for _, tag := range domain.AllSourceTags() {
		if _, ok := r.clients[tag]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

// ClientsFor returns one assignment per registered source for which the
// author has a non-empty identifier, in precedence order.
func (r *Registry) ClientsFor(author *domain.Author) []Assignment {
	if author == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Assignment, 0, len(r.clients))
	for _, tag := range domain.AllSourceTags() {
		client, ok := r.clients[tag]
		if !ok {
			continue
		}
		id := author.Identifier(tag)
		if id == "" {
			continue
		}
		out = append(out, Assignment{Tag: tag, Client: client, Identifier: id})
	}
	return out
}
