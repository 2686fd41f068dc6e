// Package registry maps entity type tags to the capabilities the publication
// core needs from a content kind: resolve by id, identify an instance, and
// optionally persist it. Content packages register themselves; the core never
// enumerates concrete types.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"herald/internal/publication/models"
	"herald/pkg/platform/sentinel"
)

// Kind describes one content kind.
type Kind[T models.Entity] struct {
	Tag models.EntityType
	// Resolve loads the entity or returns an error wrapping sentinel.ErrNotFound.
	Resolve func(ctx context.Context, id int64) (T, error)
	// Save persists the entity. Optional; kinds without it cannot receive the
	// published-at mirror.
	Save func(ctx context.Context, entity T) error
}

type kind struct {
	tag     models.EntityType
	goType  reflect.Type
	resolve func(ctx context.Context, id int64) (models.Entity, error)
	save    func(ctx context.Context, entity models.Entity) error
}

// Registry is safe for concurrent use. Registration normally happens once at
// startup.
type Registry struct {
	mu     sync.RWMutex
	byTag  map[models.EntityType]*kind
	byType map[reflect.Type]*kind
}

func New() *Registry {
	return &Registry{
		byTag:  make(map[models.EntityType]*kind),
		byType: make(map[reflect.Type]*kind),
	}
}

// Register adds a content kind. Each tag and each Go type may be registered once.
func Register[T models.Entity](r *Registry, k Kind[T]) error {
	if k.Tag == "" {
		return fmt.Errorf("register kind: tag is required")
	}
	if k.Resolve == nil {
		return fmt.Errorf("register kind %q: resolve func is required", k.Tag)
	}
	goType := reflect.TypeFor[T]()
	if goType.Kind() == reflect.Interface {
		return fmt.Errorf("register kind %q: %s is an interface, register the concrete type", k.Tag, goType)
	}

	entry := &kind{
		tag:    k.Tag,
		goType: goType,
		resolve: func(ctx context.Context, id int64) (models.Entity, error) {
			e, err := k.Resolve(ctx, id)
			if err != nil {
				return nil, err
			}
			if isNil(e) {
				return nil, fmt.Errorf("%s %d: %w", k.Tag, id, sentinel.ErrNotFound)
			}
			return e, nil
		},
	}
	if k.Save != nil {
		entry.save = func(ctx context.Context, e models.Entity) error {
			typed, ok := e.(T)
			if !ok {
				return fmt.Errorf("save %s: unexpected entity type %T", k.Tag, e)
			}
			return k.Save(ctx, typed)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byTag[k.Tag]; exists {
		return fmt.Errorf("register kind: tag %q already registered", k.Tag)
	}
	if existing, exists := r.byType[goType]; exists {
		return fmt.Errorf("register kind %q: type %s already registered as %q", k.Tag, goType, existing.tag)
	}
	r.byTag[k.Tag] = entry
	r.byType[goType] = entry
	return nil
}

// MustRegister is Register for startup wiring; it panics on error.
func MustRegister[T models.Entity](r *Registry, k Kind[T]) {
	if err := Register(r, k); err != nil {
		panic(err)
	}
}

// Resolve dereferences (entityType, id) to the concrete entity.
func (r *Registry) Resolve(ctx context.Context, entityType models.EntityType, id int64) (models.Entity, error) {
	k, err := r.kindByTag(entityType)
	if err != nil {
		return nil, err
	}
	return k.resolve(ctx, id)
}

// ResolveRef is Resolve for a ref.
func (r *Registry) ResolveRef(ctx context.Context, ref models.EntityRef) (models.Entity, error) {
	return r.Resolve(ctx, ref.Type, ref.ID)
}

// TypeOf returns the registered tag for e's dynamic type.
func (r *Registry) TypeOf(e models.Entity) (models.EntityType, error) {
	if isNil(e) {
		return "", fmt.Errorf("type of nil entity: %w", sentinel.ErrNotFound)
	}
	r.mu.RLock()
	k, ok := r.byType[reflect.TypeOf(e)]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("entity type %T is not registered: %w", e, sentinel.ErrNotFound)
	}
	return k.tag, nil
}

// RefOf builds the reference for e.
func (r *Registry) RefOf(e models.Entity) (models.EntityRef, error) {
	tag, err := r.TypeOf(e)
	if err != nil {
		return models.EntityRef{}, err
	}
	return models.EntityRef{Type: tag, ID: e.EntityID()}, nil
}

// TagFor returns the tag T was registered under.
func TagFor[T models.Entity](r *Registry) (models.EntityType, error) {
	goType := reflect.TypeFor[T]()
	r.mu.RLock()
	k, ok := r.byType[goType]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("entity type %s is not registered: %w", goType, sentinel.ErrNotFound)
	}
	return k.tag, nil
}

// Save persists e through its kind. Kinds registered without a saver return
// sentinel.ErrNotSupported.
func (r *Registry) Save(ctx context.Context, e models.Entity) error {
	tag, err := r.TypeOf(e)
	if err != nil {
		return err
	}
	k, err := r.kindByTag(tag)
	if err != nil {
		return err
	}
	if k.save == nil {
		return fmt.Errorf("save %s: %w", tag, sentinel.ErrNotSupported)
	}
	return k.save(ctx, e)
}

// Tags lists the registered tags in sorted order.
func (r *Registry) Tags() []models.EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]models.EntityType, 0, len(r.byTag))
	for tag := range r.byTag {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Has reports whether tag is registered.
func (r *Registry) Has(tag models.EntityType) bool {
	_, err := r.kindByTag(tag)
	return err == nil
}

func (r *Registry) kindByTag(tag models.EntityType) (*kind, error) {
	r.mu.RLock()
	k, ok := r.byTag[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q: %w", tag, sentinel.ErrNotFound)
	}
	return k, nil
}

func isNil(e any) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
