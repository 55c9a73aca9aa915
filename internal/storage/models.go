package storage

// StageCacheEntry is one cached stage result per wallet
type StageCacheEntry struct {
	Address   string `gorm:"primaryKey;size:42"`
	Stage     string `gorm:"primaryKey;size:32"`
	Data      []byte `gorm:"type:longblob;not null"`
	UpdatedTS int64  `gorm:"not null;index"` // unix milliseconds
}

func (StageCacheEntry) TableName() string {
	return "stage_cache"
}
