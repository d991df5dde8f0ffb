package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoPharmacySource resolves against pharmacy-scoped inventories: the
// first pharmacy carrying an embedded item with the given id wins.
type MongoPharmacySource struct {
	pharmacies *mongo.Collection
}

func NewMongoPharmacySource(db *mongo.Database) *MongoPharmacySource {
	return &MongoPharmacySource{pharmacies: db.Collection("pharmacies")}
}

func (s *MongoPharmacySource) Resolve(ctx context.Context, medicineID string) (*ResolvedItem, error) {
	var pharmacy Pharmacy
	err := s.pharmacies.FindOne(ctx, bson.M{
		"medicines": bson.M{"$elemMatch": bson.M{"medicine_id": medicineID}},
	}).Decode(&pharmacy)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, medicineID)
		}
		return nil, err
	}

	for _, item := range pharmacy.Medicines {
		if item.MedicineID != medicineID {
			continue
		}
		price := effectivePrice(item.MRP, item.SalePrice)
		if err := checkPrice(price); err != nil {
			return nil, err
		}
		pharmacyID := pharmacy.ID.Hex()
		return &ResolvedItem{
			MedicineID:           medicineID,
			Name:                 item.Name,
			UnitPrice:            price,
			RequiresPrescription: item.RequiresRx,
			PharmacyID:           &pharmacyID,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrItemNotFound, medicineID)
}

// PharmacyStore exposes pharmacy profile lookups for notification bodies.
type PharmacyStore interface {
	FindByID(ctx context.Context, id string) (*Pharmacy, error)
}

type MongoPharmacyStore struct {
	pharmacies *mongo.Collection
}

func NewMongoPharmacyStore(db *mongo.Database) *MongoPharmacyStore {
	return &MongoPharmacyStore{pharmacies: db.Collection("pharmacies")}
}

func (s *MongoPharmacyStore) FindByID(ctx context.Context, id string) (*Pharmacy, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid pharmacy id %q: %w", id, err)
	}
	var pharmacy Pharmacy
	if err := s.pharmacies.FindOne(ctx, bson.M{"_id": oid}).Decode(&pharmacy); err != nil {
		return nil, err
	}
	return &pharmacy, nil
}
