package catalog

import "go.mongodb.org/mongo-driver/bson/primitive"

// Medicine is a global catalog entry.
type Medicine struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                 string             `bson:"name" json:"name"`
	Price                float64            `bson:"price" json:"price"`
	DiscountPrice        *float64           `bson:"discount_price,omitempty" json:"discount_price,omitempty"`
	RequiresPrescription bool               `bson:"prescription_required" json:"prescription_required"`
}

// InventoryItem is one medicine embedded in a pharmacy's own inventory.
// The field naming differs from the global catalog (mrp/sale_price and
// requires_rx); both representations must be checked by the resolver.
type InventoryItem struct {
	MedicineID string   `bson:"medicine_id" json:"medicine_id"`
	Name       string   `bson:"name" json:"name"`
	MRP        float64  `bson:"mrp" json:"mrp"`
	SalePrice  *float64 `bson:"sale_price,omitempty" json:"sale_price,omitempty"`
	RequiresRx bool     `bson:"requires_rx" json:"requires_rx"`
}

// Pharmacy holds the pharmacy profile plus its embedded inventory.
type Pharmacy struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Address   string             `bson:"address" json:"address"`
	Medicines []InventoryItem    `bson:"medicines" json:"medicines"`
}
