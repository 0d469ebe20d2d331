package model

import "time"

// CSVRecord is one parsed input row before transformation.
type CSVRecord struct {
	Name  string
	Age   int
	Email string
	// Line is the 1-based line number in the source file.
	Line int
}

// Record is a transformed row as persisted in the target database.
type Record struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"column:name;size:255" json:"name"`
	Age         int       `gorm:"column:age" json:"age"`
	Email       string    `gorm:"column:email;size:255" json:"email"`
	ProcessedAt time.Time `gorm:"column:processing_timestamp" json:"processing_timestamp"`
}

// TableName implements gorm's tabler interface.
func (Record) TableName() string {
	return "records"
}
