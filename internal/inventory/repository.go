package inventory

import "context"

type Repository interface {
	Create(ctx context.Context, it *Item) error
	Get(ctx context.Context, id int64) (*Item, error)
	List(ctx context.Context) ([]Item, error)
}
