package helpers

import (
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BuildItems snapshots the cart into order items priced from the catalog,
// not from the prices captured in the cart, and returns their total.
func BuildItems(lines cart.Lines, snaps map[uuid.UUID]*product.Snapshot) ([]orders.Item, decimal.Decimal) {
	items := make([]orders.Item, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		item := orders.Item{
			ProductID: line.ProductID,
			Name:      line.Name,
			Image:     line.Image,
			Color:     line.Color,
			Size:      line.Size,
			Price:     line.Price,
			Quantity:  line.Quantity,
		}
		if snap := snaps[line.ProductID]; snap != nil {
			item.Name = snap.Name
			item.Price = snap.Price
			if snap.Image != "" {
				item.Image = snap.Image
			}
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		items = append(items, item)
	}
	return items, total
}

// ProductIDs lists the distinct products referenced by lines.
func ProductIDs(lines cart.Lines) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}
