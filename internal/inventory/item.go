package inventory

import "time"

// Item is one tracked inventory entry. SKU doubles as the productKey used to
// resolve the item against provider catalogs.
type Item struct {
	ID        int64     `json:"id"`
	SKU       string    `json:"sku"`
	Brand     string    `json:"brand,omitempty"`
	Model     string    `json:"model,omitempty"`
	Size      string    `json:"size,omitempty"`
	Nickname  string    `json:"nickname,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
