// Package resource holds the cache and request state for server-backed collections.
//
// Collection transitions are pure functions; Store serializes them under a mutex and
// decides which list results are still current.
package resource

import (
	"taskdash/internal/model"
)

// Entity is anything with a server-assigned identifier.
type Entity interface {
	EntityID() string
}

// Collection is the cached view of one collection. Items reflects the most recently
// issued list fetch that completed.
type Collection[T Entity] struct {
	Items      []T              `json:"items"`
	Selected   *T               `json:"selected,omitempty"`
	Pagination model.Pagination `json:"pagination"`
	IsLoading  bool             `json:"isLoading"`
	LastError  string           `json:"lastError,omitempty"`
}

func NewCollection[T Entity]() Collection[T] {
	return Collection[T]{Items: []T{}, Pagination: model.DefaultPagination()}
}

// Clone returns a deep enough copy that callers may not mutate store state through it.
func (c Collection[T]) Clone() Collection[T] {
	out := c
	out.Items = append(make([]T, 0, len(c.Items)), c.Items...)
	if c.Selected != nil {
		sel := *c.Selected
		out.Selected = &sel
	}
	return out
}

// Find returns the cached item with id.
func (c Collection[T]) Find(id string) (T, bool) {
	for _, it := range c.Items {
		if it.EntityID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func (c Collection[T]) started() Collection[T] {
	c.IsLoading = true
	c.LastError = ""
	return c
}

func (c Collection[T]) failed(msg string) Collection[T] {
	c.LastError = msg
	return c
}

func (c Collection[T]) listed(p model.Page[T]) Collection[T] {
	c.Items = append(make([]T, 0, len(p.Items)), p.Items...)
	c.Pagination = p.Pagination
	return c
}

func (c Collection[T]) fetched(item T) Collection[T] {
	c = c.replaced(item)
	c.Selected = &item
	return c
}

// created inserts item at the head. An existing entry with the same id is dropped so
// a racing list result never leaves a duplicate.
func (c Collection[T]) created(item T) Collection[T] {
	items := make([]T, 0, len(c.Items)+1)
	items = append(items, item)
	for _, it := range c.Items {
		if it.EntityID() != item.EntityID() {
			items = append(items, it)
		}
	}
	c.Items = items
	return c
}

// replaced swaps the entry with item's id, and Selected when it matches.
func (c Collection[T]) replaced(item T) Collection[T] {
	id := item.EntityID()
	items := make([]T, len(c.Items))
	for i, it := range c.Items {
		if it.EntityID() == id {
			items[i] = item
		} else {
			items[i] = it
		}
	}
	c.Items = items
	if c.Selected != nil && (*c.Selected).EntityID() == id {
		sel := item
		c.Selected = &sel
	}
	return c
}

func (c Collection[T]) deleted(id string) Collection[T] {
	items := make([]T, 0, len(c.Items))
	for _, it := range c.Items {
		if it.EntityID() != id {
			items = append(items, it)
		}
	}
	c.Items = items
	if c.Selected != nil && (*c.Selected).EntityID() == id {
		c.Selected = nil
	}
	return c
}

// reset keeps the items and returns everything else to its initial value.
func (c Collection[T]) reset() Collection[T] {
	out := NewCollection[T]()
	out.Items = c.Items
	return out
}
