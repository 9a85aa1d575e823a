package discovery

import "context"

// StaticDiscover returns a fixed set of instances for every endpoint; it
// never watches, matching spec §4.E's "Static (constant sequence)"
// built-in variant. Useful for tests and for pinning a client to a
// hand-configured instance list without a registry dependency.
type StaticDiscover struct {
	instances []Instance
}

// NewStaticDiscover builds a Discover that always returns instances,
// regardless of the endpoint name requested.
func NewStaticDiscover(instances ...Instance) *StaticDiscover {
	return &StaticDiscover{instances: instances}
}

func (s *StaticDiscover) Discover(ctx context.Context, endpoint string) ([]Instance, error) {
	out := make([]Instance, len(s.instances))
	copy(out, s.instances)
	return out, nil
}

func (s *StaticDiscover) Key(endpoint string) string {
	return endpoint
}

func (s *StaticDiscover) Watch(ctx context.Context, endpoint string) (<-chan Change[string], bool) {
	return nil, false
}
