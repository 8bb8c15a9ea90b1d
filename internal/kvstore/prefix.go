package kvstore

import "context"

type prefixed struct {
	base   Store
	prefix string
}

type prefixedUpdater struct {
	prefixed
	updater Updater
}

// WithPrefix returns a view of base in which every key is prefixed. The view
// implements Updater when base does.
func WithPrefix(base Store, prefix string) Store {
	p := prefixed{base: base, prefix: prefix}
	if u, ok := base.(Updater); ok {
		return &prefixedUpdater{prefixed: p, updater: u}
	}
	return &p
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.base.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.base.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Remove(ctx context.Context, key string) error {
	return p.base.Remove(ctx, p.prefix+key)
}

func (p *prefixedUpdater) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return p.updater.Update(ctx, p.prefix+key, fn)
}
