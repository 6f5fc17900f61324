package id

import "go.mongodb.org/mongo-driver/bson/primitive"

// ObjectIDGenerator issues 24-hex BSON ObjectIDs so ids stay valid for both stores.
type ObjectIDGenerator struct{}

func NewObjectIDGenerator() ObjectIDGenerator { return ObjectIDGenerator{} }

func (ObjectIDGenerator) NewID() string { return primitive.NewObjectID().Hex() }

func (ObjectIDGenerator) Valid(id string) bool {
	return primitive.IsValidObjectID(id)
}
