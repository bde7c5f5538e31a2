package platform

import (
	"context"
	"sort"
)

// Credential is the decrypted access credential for one linked account.
// It is built per publish call and never cached process-wide.
type Credential struct {
	AccountID   string
	AccessToken string
}

// Publication is everything an adapter needs to publish one post to one
// platform. Overrides holds the per-platform options from the post's
// content metadata (page id, privacy level, post subtype).
type Publication struct {
	Content   string
	Title     string
	MediaURL  string
	MediaType string
	Overrides map[string]string
}

// Adapter performs one platform's publish protocol. Publish returns the
// provider-assigned identifier of the created post, or an error whose
// message is suitable for storing on the target row.
type Adapter interface {
	Tag() string
	Publish(ctx context.Context, cred Credential, pub Publication) (string, error)
}

// Registry resolves platform tags to adapters. It is built once at
// startup; adding a platform means registering one more adapter here,
// never touching the worker.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Tag()] = a
	}
	return r
}

func (r *Registry) Get(tag string) (Adapter, bool) {
	a, ok := r.adapters[tag]
	return a, ok
}

func (r *Registry) Has(tag string) bool {
	_, ok := r.adapters[tag]
	return ok
}

func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
