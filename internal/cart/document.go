package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

const (
	legacyVersion  = 0
	currentVersion = 1
)

// document is the persisted cart shape shared by both stores. Version 0
// documents were written by the storefront before line fields were renamed.
type document struct {
	Owner     string         `bson:"_id" json:"owner"`
	Version   int            `bson:"version" json:"version"`
	Items     []documentLine `bson:"items" json:"items"`
	UpdatedAt time.Time      `bson:"updated_at" json:"updated_at"`
}

type documentLine struct {
	ProductID string `bson:"product_id,omitempty" json:"product_id,omitempty"`
	Name      string `bson:"name" json:"name"`
	Price     price  `bson:"price" json:"price"`
	Image     string `bson:"image,omitempty" json:"image,omitempty"`
	Color     string `bson:"color,omitempty" json:"color,omitempty"`
	Size      string `bson:"size,omitempty" json:"size,omitempty"`
	Quantity  int    `bson:"quantity" json:"quantity"`

	LegacyID     string   `bson:"id,omitempty" json:"id,omitempty"`
	LegacyColor  string   `bson:"selectedColor,omitempty" json:"selectedColor,omitempty"`
	LegacySize   string   `bson:"selectedSize,omitempty" json:"selectedSize,omitempty"`
	LegacyImages []string `bson:"images,omitempty" json:"images,omitempty"`
}

// price decodes numbers and numeric strings. Legacy documents stored prices
// as plain numbers; current documents store the decimal string.
type price struct {
	decimal.Decimal
}

func (p price) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(p.Decimal.String())
}

func (p *price) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.String:
		return p.parse(raw.StringValue())
	case bsontype.Double:
		p.Decimal = decimal.NewFromFloat(raw.Double())
	case bsontype.Int32:
		p.Decimal = decimal.NewFromInt32(raw.Int32())
	case bsontype.Int64:
		p.Decimal = decimal.NewFromInt(raw.Int64())
	case bsontype.Decimal128:
		return p.parse(raw.Decimal128().String())
	case bsontype.Null, bsontype.Undefined:
		p.Decimal = decimal.Zero
	default:
		return fmt.Errorf("unsupported price type %s", t)
	}
	return nil
}

func (p price) MarshalJSON() ([]byte, error) {
	return p.Decimal.MarshalJSON()
}

func (p *price) UnmarshalJSON(data []byte) error {
	return p.Decimal.UnmarshalJSON(data)
}

func (p *price) parse(value string) error {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("parse price %q: %w", value, err)
	}
	p.Decimal = parsed
	return nil
}

// ErrUnsupportedVersion is returned for documents newer than this build.
type ErrUnsupportedVersion struct {
	Version int
}

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("unsupported cart document version %d", e.Version)
}

func newDocument(owner string, lines Lines, now time.Time) document {
	items := make([]documentLine, 0, len(lines))
	for _, line := range lines {
		items = append(items, documentLine{
			ProductID: line.ProductID.String(),
			Name:      line.Name,
			Price:     price{line.Price},
			Image:     line.Image,
			Color:     line.Color,
			Size:      line.Size,
			Quantity:  line.Quantity,
		})
	}
	return document{Owner: owner, Version: currentVersion, Items: items, UpdatedAt: now.UTC()}
}

// normalize maps a stored document onto cart lines. Items that cannot be
// addressed are dropped and counted; duplicate keys are folded together.
func (d document) normalize() (Lines, int, error) {
	if d.Version > currentVersion || d.Version < legacyVersion {
		return nil, 0, ErrUnsupportedVersion{Version: d.Version}
	}

	lines := Lines{}
	dropped := 0
	for _, item := range d.Items {
		if d.Version == legacyVersion {
			item = item.upgrade()
		}
		productID, err := uuid.Parse(strings.TrimSpace(item.ProductID))
		if err != nil {
			dropped++
			continue
		}
		line := Line{
			ProductID: productID,
			Name:      item.Name,
			Price:     item.Price.Decimal,
			Image:     item.Image,
			Color:     item.Color,
			Size:      item.Size,
			Quantity:  item.Quantity,
		}
		key := line.Key()
		if !key.Valid() || line.Quantity <= 0 || line.Price.IsNegative() {
			dropped++
			continue
		}
		line.Color, line.Size = key.Color, key.Size
		if i := lines.index(key); i >= 0 {
			lines[i].Quantity += line.Quantity
			continue
		}
		lines = append(lines, line)
	}
	return lines, dropped, nil
}

func (l documentLine) upgrade() documentLine {
	if l.ProductID == "" {
		l.ProductID = l.LegacyID
	}
	if l.Color == "" {
		l.Color = l.LegacyColor
	}
	if l.Size == "" {
		l.Size = l.LegacySize
	}
	if l.Image == "" && len(l.LegacyImages) > 0 {
		l.Image = l.LegacyImages[0]
	}
	return l
}
