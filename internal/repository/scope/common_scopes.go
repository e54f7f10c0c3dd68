package scope

import "gorm.io/gorm"

func OrderByCreatedAsc(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC")
}

// OrderBySequence orders append-only logs in the order they were accepted.
func OrderBySequence(db *gorm.DB) *gorm.DB {
	return db.Order("sequence ASC")
}
