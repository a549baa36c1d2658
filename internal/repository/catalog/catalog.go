// Package catalog reads material master data maintained by the catalogue screens.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
)

const materialsCollection = "materials"

// Catalog is a read-only view over the materials collection.
type Catalog struct {
	store docstore.Store
}

// New returns a catalog backed by store.
func New(store docstore.Store) *Catalog {
	return &Catalog{store: store}
}

// Material loads one material by id.
func (c *Catalog) Material(ctx context.Context, id string) (models.Material, error) {
	var m models.Material
	err := c.store.Get(ctx, materialsCollection, id, &m)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.Material{}, fmt.Errorf("material %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Material{}, fmt.Errorf("load material %s: %w: %w", id, models.ErrPersistence, err)
	}
	return m, nil
}

// Materials lists every material.
func (c *Catalog) Materials(ctx context.Context) ([]models.Material, error) {
	var out []models.Material
	if err := c.store.Find(ctx, materialsCollection, nil, &out); err != nil {
		return nil, fmt.Errorf("list materials: %w: %w", models.ErrPersistence, err)
	}
	return out, nil
}

// RequireAll fails with models.ErrNotFound on the first unknown id.
func (c *Catalog) RequireAll(ctx context.Context, ids ...string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := c.Material(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Put creates or replaces a material.
func (c *Catalog) Put(ctx context.Context, m models.Material) error {
	if err := c.store.Set(ctx, materialsCollection, m.ID, m); err != nil {
		return fmt.Errorf("store material %s: %w: %w", m.ID, models.ErrPersistence, err)
	}
	return nil
}
