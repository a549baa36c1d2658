package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
)

const usersCollection = "users"

// Directory resolves notification recipients.
type Directory interface {
	User(ctx context.Context, id string) (models.User, error)
	UsersWithRole(ctx context.Context, role string) ([]models.User, error)
}

// StoreDirectory reads the users collection maintained by user administration.
type StoreDirectory struct {
	store docstore.Store
}

// NewStoreDirectory returns a directory over store.
func NewStoreDirectory(store docstore.Store) *StoreDirectory {
	return &StoreDirectory{store: store}
}

// User loads one user.
func (d *StoreDirectory) User(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := d.store.Get(ctx, usersCollection, id, &u)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user %s: %w", id, err)
	}
	return u, nil
}

// UsersWithRole lists holders of role.
func (d *StoreDirectory) UsersWithRole(ctx context.Context, role string) ([]models.User, error) {
	var users []models.User
	if err := d.store.Find(ctx, usersCollection, docstore.Fields{"roles": role}, &users); err != nil {
		return nil, fmt.Errorf("list users with role %s: %w", role, err)
	}
	return users, nil
}
