package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/pkg/logger"
	"github.com/recorpproduction-prog/camcapprod/storage"
)

var ErrInvalidUser = errors.New("user name and role required")

// UserDirectory serves registered users. The shared API is the source when
// it is configured; otherwise the configured list is used.
type UserDirectory struct {
	shared *storage.SharedAPI

	mu     sync.Mutex
	static []model.User
	cache  []model.User
	cached bool
}

func NewUserDirectory(shared *storage.SharedAPI, static []model.User) *UserDirectory {
	return &UserDirectory{shared: shared, static: static}
}

// List returns users, fetching from the shared API on first use or after
// Invalidate. A failed fetch falls back to the last good list.
func (d *UserDirectory) List(ctx context.Context) ([]model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.list(ctx)
}

// list must be called with d.mu held.
func (d *UserDirectory) list(ctx context.Context) ([]model.User, error) {
	if d.shared == nil || !d.shared.IsAvailable() {
		return append([]model.User(nil), d.static...), nil
	}
	if d.cached {
		return append([]model.User(nil), d.cache...), nil
	}
	users, err := d.shared.ListUsers(ctx)
	if err != nil {
		if d.cache != nil {
			logger.Warn(ctx, "user list refresh failed, using cached list", "error", err)
			return append([]model.User(nil), d.cache...), nil
		}
		return nil, err
	}
	d.cache = users
	d.cached = true
	return append([]model.User(nil), users...), nil
}

// Invalidate forces the next List to refetch.
func (d *UserDirectory) Invalidate() {
	d.mu.Lock()
	d.cached = false
	d.mu.Unlock()
}

// Register adds or replaces a user matched by name.
func (d *UserDirectory) Register(ctx context.Context, user model.User) error {
	user.Name = strings.TrimSpace(user.Name)
	user.Email = strings.TrimSpace(user.Email)
	if user.Name == "" || user.Role == "" {
		return ErrInvalidUser
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	users, err := d.list(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range users {
		if strings.EqualFold(users[i].Name, user.Name) {
			users[i] = user
			replaced = true
		}
	}
	if !replaced {
		users = append(users, user)
	}

	if d.shared == nil || !d.shared.IsAvailable() {
		d.static = users
		return nil
	}
	if err := d.shared.SaveUsers(ctx, users); err != nil {
		return err
	}
	d.cache = users
	d.cached = true
	return nil
}

// FindByName returns the user whose name matches, ignoring case and
// surrounding space.
func (d *UserDirectory) FindByName(ctx context.Context, name string) (model.User, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.User{}, false
	}
	users, err := d.List(ctx)
	if err != nil {
		return model.User{}, false
	}
	for _, u := range users {
		if strings.EqualFold(strings.TrimSpace(u.Name), name) {
			return u, true
		}
	}
	return model.User{}, false
}
