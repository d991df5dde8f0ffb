package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoCatalogSource resolves against the global medicines collection.
type MongoCatalogSource struct {
	medicines *mongo.Collection
}

func NewMongoCatalogSource(db *mongo.Database) *MongoCatalogSource {
	return &MongoCatalogSource{medicines: db.Collection("medicines")}
}

func (s *MongoCatalogSource) Resolve(ctx context.Context, medicineID string) (*ResolvedItem, error) {
	// Ids that are not catalog-id shaped can only live in pharmacy
	// inventories; let the next source in the chain try.
	oid, err := primitive.ObjectIDFromHex(medicineID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, medicineID)
	}

	var med Medicine
	if err := s.medicines.FindOne(ctx, bson.M{"_id": oid}).Decode(&med); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, medicineID)
		}
		return nil, err
	}

	price := effectivePrice(med.Price, med.DiscountPrice)
	if err := checkPrice(price); err != nil {
		return nil, err
	}

	return &ResolvedItem{
		MedicineID:           medicineID,
		Name:                 med.Name,
		UnitPrice:            price,
		RequiresPrescription: med.RequiresPrescription,
		PharmacyID:           nil,
	}, nil
}
