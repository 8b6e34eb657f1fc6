package model

// Document is one record of a logical collection. Data holds the JSON field map.
type Document struct {
	Collection string `gorm:"column:collection;type:text;primaryKey"`
	DocID      string `gorm:"column:doc_id;type:text;primaryKey"`
	Data       string `gorm:"column:data;type:text;not null"`
	CreatedAt  string `gorm:"column:created_at;type:text;not null"`
	UpdatedAt  string `gorm:"column:updated_at;type:text;not null;index"`
}

func (Document) TableName() string {
	return "documents"
}
