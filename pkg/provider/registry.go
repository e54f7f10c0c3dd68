package provider

import (
	"context"
	"fmt"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/repository/contract"

	"github.com/google/uuid"
)

// Registry is the provider metadata loaded once at startup. It is read-only afterwards
// and safe for concurrent use.
type Registry struct {
	byID   map[uuid.UUID]*entity.Provider
	byName map[string]*entity.Provider
	all    []*entity.Provider
}

func NewRegistry(providers []*entity.Provider) *Registry {
	r := &Registry{
		byID:   make(map[uuid.UUID]*entity.Provider, len(providers)),
		byName: make(map[string]*entity.Provider, len(providers)),
	}
	for _, p := range providers {
		if p.NormalizedName == "" {
			p.NormalizedName = entity.NormalizeProviderName(p.Name)
		}
		r.byID[p.ID] = p
		r.byName[p.NormalizedName] = p
		r.all = append(r.all, p)
	}
	return r
}

func LoadRegistry(ctx context.Context, repo contract.ProviderRepository) (*Registry, error) {
	providers, err := repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	return NewRegistry(providers), nil
}

func (r *Registry) ByID(id uuid.UUID) (*entity.Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// ByName accepts display or normalized names.
func (r *Registry) ByName(name string) (*entity.Provider, bool) {
	p, ok := r.byName[entity.NormalizeProviderName(name)]
	return p, ok
}

func (r *Registry) All() []*entity.Provider {
	return r.all
}
