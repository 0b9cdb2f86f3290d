package store

// ClassificationCacheEntry is a content-addressed classifier result. The key
// is a hash of the normalized message text.
type ClassificationCacheEntry struct {
	Hash       string
	Category   string
	Confidence float64
	Model      string
	Reasoning  string
	ExpiresTs  int64
	CreatedTs  int64
}
