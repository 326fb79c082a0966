package importer

import "time"

// Stats 统计一次导入操作
type Stats struct {
	PackHits      int           `json:"pack_hits"`
	RemoteFetches int           `json:"remote_fetches"`
	CacheHits     int           `json:"cache_hits"`
	TreesWritten  int           `json:"trees_written"`
	TreesExisting int           `json:"trees_existing"`
	Files         int           `json:"files"`
	Duration      time.Duration `json:"duration_ns"`
}
