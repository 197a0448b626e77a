package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// NewID génère un identifiant hexadécimal ordonné dans le temps.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// IsID vérifie qu'une chaîne a la forme d'un identifiant généré par NewID.
func IsID(id string) bool {
	return primitive.IsValidObjectID(id)
}
