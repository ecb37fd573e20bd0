package dto

// BandBucketDTO is one bucket of the band distribution. Zero-count buckets
// are always present so the output shape is stable.
type BandBucketDTO struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// SkillBandStatsDTO carries the average alongside the count so callers can
// tell a genuine 0.0 average apart from "no data".
type SkillBandStatsDTO struct {
	Skill        string          `json:"skill"`
	Average      float64         `json:"average"`
	Count        int             `json:"count"`
	Distribution []BandBucketDTO `json:"distribution"`
}

type BandStatsResponse struct {
	Skills []SkillBandStatsDTO `json:"skills"`
}
