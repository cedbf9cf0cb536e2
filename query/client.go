package query

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
)

// Client is the application-level owner of registries: one query registry
// and one mutation registry per capability type, created on first use with
// the client's Config. Pass it explicitly to whatever needs the cache.
type Client struct {
	cfg Config

	mu        sync.Mutex
	queries   map[reflect.Type]any // *Registry[K, T]
	mutations map[reflect.Type]any // *Mutations[K, T]
	closers   []func() error
	closed    bool

	ids atomic.Uint64
}

// NewClient returns a client whose registries share cfg.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:       cfg.withDefaults(),
		queries:   make(map[reflect.Type]any),
		mutations: make(map[reflect.Type]any),
	}
}

// NewSubscriberID returns a fresh consumer identity (never zero).
func (c *Client) NewSubscriberID() SubscriberID {
	return SubscriberID(c.ids.Add(1))
}

// Config returns the configuration shared by the client's registries.
func (c *Client) Config() Config { return c.cfg }

// QueriesFor returns the query registry for the dynamic type of capability.
// Using a closed client panics.
func QueriesFor[K comparable, T any](c *Client, capability Capability[K, T]) *Registry[K, T] {
	typ := reflect.TypeOf(capability)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		panic("query: QueriesFor on closed client")
	}
	if r, ok := c.queries[typ]; ok {
		return r.(*Registry[K, T])
	}
	r := New(Options[K, T]{Config: c.cfg, Name: "query/" + typ.String()})
	c.queries[typ] = r
	c.closers = append(c.closers, r.Close)
	return r
}

// MutationsFor returns the mutation registry for the dynamic type of
// capability. Using a closed client panics.
func MutationsFor[K comparable, T any](c *Client, capability Capability[K, T]) *Mutations[K, T] {
	typ := reflect.TypeOf(capability)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		panic("query: MutationsFor on closed client")
	}
	if m, ok := c.mutations[typ]; ok {
		return m.(*Mutations[K, T])
	}
	m := NewMutations(Options[K, T]{Config: c.cfg, Name: "mutation/" + typ.String()})
	c.mutations[typ] = m
	c.closers = append(c.closers, m.Close)
	return m
}

// Close closes every registry created by the client. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs error
	for _, fn := range closers {
		errs = errors.Join(errs, fn())
	}
	return errs
}
