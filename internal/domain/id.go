package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

// NewID genera un identificador de 24 caracteres hex (formato ObjectID),
// valido para ambos backends de persistencia.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// IsValidID indica si id tiene el formato de identificador del store.
func IsValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}
