package models

// Material is master data owned by the catalogue; the workflow engine only reads it.
type Material struct {
	ID           string `bson:"_id" json:"id"`
	Name         string `bson:"name" json:"name"`
	Code         string `bson:"code" json:"code"`
	Category     string `bson:"category" json:"category"`
	Unit         string `bson:"unit" json:"unit"`
	ReorderLevel int64  `bson:"reorderLevel" json:"reorder_level"`
	MaxLevel     int64  `bson:"maxLevel" json:"max_level"`
	UnitPrice    Money  `bson:"unitPrice" json:"unit_price"`
	Active       bool   `bson:"active" json:"active"`
}
