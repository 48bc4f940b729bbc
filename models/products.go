package models

// Product is a single catalog listing.
// ID is zero until the store assigns one on insert; every other field is
// plain text, price included.
type Product struct {
	ID          uint   `gorm:"primaryKey"`
	Title       string `gorm:"type:text;not null"`
	Description string `gorm:"type:text;not null"`
	Category    string `gorm:"type:text;not null;index"`
	Price       string `gorm:"type:text;not null"`
	Brand       string `gorm:"type:text;not null"`
	Condition   string `gorm:"type:text;not null"`
	Color       string `gorm:"type:text;not null"`
}

func (p *Product) TableName() string {
	return "products"
}

// SearchResult is a product as ranked by the external search function.
// Higher scores are more relevant; the scale is the function's own.
type SearchResult struct {
	Product
	SimilarityScore float64
}
