package api

import "math"

type ProfileStatsResponse struct {
	Assistants    int     `json:"assistants"`
	Conversations int     `json:"conversations"`
	Messages      int     `json:"messages"`
	StorageUsedMB float64 `json:"storage_used_mb"`
}

// BytesToMB rounds to two decimals.
func BytesToMB(b int64) float64 {
	return math.Round(float64(b)/(1024*1024)*100) / 100
}

type DashboardAssistant struct {
	Id            int64  `json:"id"`
	Name          string `json:"name"`
	Model         string `json:"model"`
	Conversations int    `json:"conversations"`
}

type DashboardResponse struct {
	ProfileStatsResponse
	RecentAssistants []DashboardAssistant `json:"recent_assistants"`
}
