package models

// MetricsSnapshot is the rolling view of request handling.
type MetricsSnapshot struct {
	TotalRequests      int                `json:"totalRequests"`
	CacheHits          int                `json:"cacheHits"`
	CacheMisses        int                `json:"cacheMisses"`
	CacheHitRate       float64            `json:"cacheHitRate"`
	AvgLatency         float64            `json:"avgLatency"`
	SourceLatencies    map[string]float64 `json:"sourceLatencies"`
	RequestsLastMinute int                `json:"requestsLastMinute"`
}
