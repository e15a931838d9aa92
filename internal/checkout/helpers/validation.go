package helpers

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
)

// StockProblem is one cart line that asks for more than the catalog holds.
type StockProblem struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Size      string    `json:"size"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Reason is the shopper-facing description of the problem.
func (p StockProblem) Reason() string {
	if p.Available <= 0 {
		return fmt.Sprintf("%s (%s/%s) is out of stock", p.Name, p.Color, p.Size)
	}
	return fmt.Sprintf("only %d of %s (%s/%s) available", p.Available, p.Name, p.Color, p.Size)
}

// ResolveAddress prefers the address submitted with the checkout and falls
// back to the one saved on the profile.
func ResolveAddress(submitted, saved string) (string, error) {
	if address := strings.TrimSpace(submitted); address != "" {
		return address, nil
	}
	if address := strings.TrimSpace(saved); address != "" {
		return address, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "delivery address is required")
}

// CheckStock compares every line against freshly read snapshots. Products
// missing from snaps count as out of stock.
func CheckStock(lines cart.Lines, snaps map[uuid.UUID]*product.Snapshot) []StockProblem {
	var problems []StockProblem
	for _, line := range lines {
		snap := snaps[line.ProductID]
		available := snap.StockFor(line.Color, line.Size)
		if line.Quantity <= available {
			continue
		}
		name := line.Name
		if snap != nil && snap.Name != "" {
			name = snap.Name
		}
		problems = append(problems, StockProblem{
			ProductID: line.ProductID,
			Name:      name,
			Color:     line.Color,
			Size:      line.Size,
			Requested: line.Quantity,
			Available: available,
		})
	}
	return problems
}

// StockError turns problems into a conflict error listing each line.
func StockError(problems []StockProblem) error {
	if len(problems) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(problems))
	for _, p := range problems {
		reasons = append(reasons, p.Reason())
	}
	return pkgerrors.New(pkgerrors.CodeConflict, strings.Join(reasons, "; ")).
		WithDetails(map[string]any{"lines": problems})
}
