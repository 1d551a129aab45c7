package stream

import (
	"sort"
	"sync"

	"github.com/jacentio/docket/store"
)

// Route maps a DynamoDB table to the collection it holds.
type Route struct {
	// Table is the DynamoDB table name (e.g., "prod-app.orders").
	Table string

	// Database is the collection's database id (e.g., "app").
	Database string

	// Collection is the collection id (e.g., "orders").
	Collection string
}

// CollectionLink returns the link of the routed collection.
func (r Route) CollectionLink() string {
	return store.CollectionLink(r.Database, r.Collection)
}

// ResolverFunc names the collection held by a table, or reports false.
// dynamo.Store.CollectionOf has this shape.
type ResolverFunc func(table string) (database, collection string, ok bool)

// Registry holds the tables whose stream records become changes.
// Explicit routes win over the resolver.
type Registry struct {
	mu       sync.RWMutex
	byTable  map[string]Route
	resolver ResolverFunc
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{byTable: make(map[string]Route)}
}

// Register adds a route, replacing any earlier route for the same table.
func (r *Registry) Register(route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTable[route.Table] = route
}

// SetResolver sets the fallback used for tables without an explicit route.
func (r *Registry) SetResolver(fn ResolverFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = fn
}

// Lookup returns the route for table.
func (r *Registry) Lookup(table string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if route, ok := r.byTable[table]; ok {
		return route, true
	}
	if r.resolver != nil {
		if db, coll, ok := r.resolver(table); ok {
			return Route{Table: table, Database: db, Collection: coll}, true
		}
	}
	return Route{}, false
}

// Routes returns the explicit routes sorted by table name.
func (r *Registry) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routes := make([]Route, 0, len(r.byTable))
	for _, route := range r.byTable {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Table < routes[j].Table })
	return routes
}
