package authz

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

const adminsCacheKey = "admins"

// AdminList is a read-through cache over the meta/admins document.
type AdminList struct {
	store docstore.Store
	cache *gocache.Cache
}

func NewAdminList(store docstore.Store, ttl time.Duration) *AdminList {
	return &AdminList{store: store, cache: gocache.New(ttl, 2*ttl)}
}

// Admins returns the current admin uids.
func (a *AdminList) Admins(ctx context.Context) ([]string, error) {
	if v, ok := a.cache.Get(adminsCacheKey); ok {
		return v.([]string), nil
	}
	var doc model.AdminList
	err := a.store.Get(ctx, model.CollectionMeta, model.AdminsKey, &doc)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return nil, errors.Wrap(err, "load admin list")
	}
	a.cache.SetDefault(adminsCacheKey, doc.Admins)
	return doc.Admins, nil
}

// IsAdmin reports whether uid is on the admin list.
func (a *AdminList) IsAdmin(ctx context.Context, uid string) (bool, error) {
	admins, err := a.Admins(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range admins {
		if id == uid {
			return true, nil
		}
	}
	return false, nil
}

// Add puts uid on the list. Returns the resulting list.
func (a *AdminList) Add(ctx context.Context, uid string) ([]string, error) {
	return a.edit(ctx, func(list []string) []string {
		for _, id := range list {
			if id == uid {
				return list
			}
		}
		return append(list, uid)
	})
}

// Remove takes uid off the list. Returns the resulting list.
func (a *AdminList) Remove(ctx context.Context, uid string) ([]string, error) {
	return a.edit(ctx, func(list []string) []string {
		out := list[:0]
		for _, id := range list {
			if id != uid {
				out = append(out, id)
			}
		}
		return out
	})
}

func (a *AdminList) edit(ctx context.Context, apply func([]string) []string) ([]string, error) {
	var result []string
	err := a.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var doc model.AdminList
		if err := tx.Get(ctx, model.CollectionMeta, model.AdminsKey, &doc); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		doc.Admins = apply(append([]string{}, doc.Admins...))
		if doc.Admins == nil {
			doc.Admins = []string{}
		}
		result = doc.Admins
		return tx.Set(model.CollectionMeta, model.AdminsKey, doc)
	})
	if err != nil {
		return nil, errors.Wrap(err, "edit admin list")
	}
	a.Invalidate()
	return result, nil
}

// Invalidate drops the cached list.
func (a *AdminList) Invalidate() { a.cache.Delete(adminsCacheKey) }
