package cart

import (
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Key identifies one cart line: a product in a specific color and size.
type Key struct {
	ProductID uuid.UUID `json:"product_id"`
	Color     string    `json:"color"`
	Size      string    `json:"size"`
}

// NewKey normalizes the variant labels of a line key.
func NewKey(productID uuid.UUID, color, size string) Key {
	return Key{ProductID: productID, Color: product.NormalizeLabel(color), Size: product.NormalizeLabel(size)}
}

// Valid reports whether every part of the key is set.
func (k Key) Valid() bool {
	return k.ProductID != uuid.Nil && k.Color != "" && k.Size != ""
}

// Line is one cart entry. Name, price and image are captured when the line
// is first added.
type Line struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Color     string          `json:"color"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
}

// Key returns the identity of the line.
func (l Line) Key() Key {
	return NewKey(l.ProductID, l.Color, l.Size)
}

// Total is price times quantity.
func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Lines keeps insertion order.
type Lines []Line

// StockFunc reports the stock observed for a line key.
type StockFunc func(Key) int

// Outcome describes what an add did to the cart.
type Outcome string

const (
	OutcomeAdded     Outcome = "added"
	OutcomeClamped   Outcome = "clamped"
	OutcomeUnchanged Outcome = "unchanged"
)

// AddResult is the result of a single add.
type AddResult struct {
	Outcome   Outcome
	Quantity  int
	Available int
}

func (ls Lines) index(key Key) int {
	for i, line := range ls {
		if line.Key() == key {
			return i
		}
	}
	return -1
}

// Find returns the line stored under key.
func (ls Lines) Find(key Key) (Line, bool) {
	if i := ls.index(key); i >= 0 {
		return ls[i], true
	}
	return Line{}, false
}

// Count is the number of units across all lines.
func (ls Lines) Count() int {
	total := 0
	for _, line := range ls {
		total += line.Quantity
	}
	return total
}

// Subtotal sums every line total.
func (ls Lines) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range ls {
		total = total.Add(line.Total())
	}
	return total
}

func (ls Lines) clone() Lines {
	return append(Lines(nil), ls...)
}

// Add merges line into the collection, clamping the resulting quantity to
// stock. Callers reject stock <= 0 before calling.
func (ls Lines) Add(line Line, stock int) (Lines, AddResult) {
	out := ls.clone()
	key := line.Key()
	line.Color, line.Size = key.Color, key.Size

	if i := out.index(key); i >= 0 {
		existing := out[i].Quantity
		next := min(existing+line.Quantity, stock)
		if next == existing {
			return out, AddResult{Outcome: OutcomeUnchanged, Quantity: existing, Available: stock}
		}
		out[i].Quantity = next
		return out, AddResult{Outcome: outcomeFor(existing+line.Quantity, next), Quantity: next, Available: stock}
	}

	requested := line.Quantity
	line.Quantity = min(requested, stock)
	out = append(out, line)
	return out, AddResult{Outcome: outcomeFor(requested, line.Quantity), Quantity: line.Quantity, Available: stock}
}

func outcomeFor(requested, granted int) Outcome {
	if granted < requested {
		return OutcomeClamped
	}
	return OutcomeAdded
}

// SetQuantity replaces the quantity of an existing line, clamped to stock.
// The returned bool is false when no line matches key.
func (ls Lines) SetQuantity(key Key, quantity, stock int) (Lines, int, bool) {
	out := ls.clone()
	i := out.index(key)
	if i < 0 {
		return out, 0, false
	}
	out[i].Quantity = min(quantity, stock)
	return out, out[i].Quantity, true
}

// Remove deletes the line with key, if present.
func (ls Lines) Remove(key Key) Lines {
	out := make(Lines, 0, len(ls))
	for _, line := range ls {
		if line.Key() == key {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Merge folds guest lines into remote lines. Matching keys sum and clamp to
// stock; new keys are appended clamped. Lines that clamp to zero are dropped.
func Merge(remote, local Lines, stock StockFunc) Lines {
	out := remote.clone()
	for _, line := range local {
		key := line.Key()
		line.Color, line.Size = key.Color, key.Size
		available := stock(key)
		if i := out.index(key); i >= 0 {
			out[i].Quantity = min(out[i].Quantity+line.Quantity, available)
			continue
		}
		line.Quantity = min(line.Quantity, available)
		out = append(out, line)
	}

	kept := out[:0]
	for _, line := range out {
		if line.Quantity > 0 {
			kept = append(kept, line)
		}
	}
	return kept
}
