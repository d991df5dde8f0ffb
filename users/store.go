package users

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound means no user document matches the id.
var ErrNotFound = errors.New("user not found")

// Address is one entry of the user's embedded address book. Orders snapshot
// the selected address at checkout; the book itself is owned by the account
// subsystem.
type Address struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Label   string             `bson:"label" json:"label"`
	Line1   string             `bson:"line1" json:"line1"`
	Line2   string             `bson:"line2,omitempty" json:"line2,omitempty"`
	City    string             `bson:"city" json:"city"`
	State   string             `bson:"state,omitempty" json:"state,omitempty"`
	Pincode string             `bson:"pincode" json:"pincode"`
	Phone   string             `bson:"phone,omitempty" json:"phone,omitempty"`
}

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Role      string             `bson:"role" json:"role"`
	Addresses []Address          `bson:"addresses" json:"addresses"`
}

// AddressByID looks up an address by identity within the embedded list.
func (u *User) AddressByID(id string) (*Address, bool) {
	for i := range u.Addresses {
		if u.Addresses[i].ID.Hex() == id {
			return &u.Addresses[i], true
		}
	}
	return nil, false
}

// Store is the read-only view of the user collection the order engine needs:
// profile + address book for checkout, role listing for the delivery-partner
// broadcast.
type Store interface {
	FindByID(ctx context.Context, id string) (*User, error)
	ListByRole(ctx context.Context, role string) ([]User, error)
}

type MongoStore struct {
	users *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{users: db.Collection("users")}
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	var user User
	if err := s.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *MongoStore) ListByRole(ctx context.Context, role string) ([]User, error) {
	cursor, err := s.users.Find(ctx, bson.M{"role": role})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []User
	if err := cursor.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}
