package service

import (
	"github.com/vmphat/bandlab/internal/dto"
	"github.com/vmphat/bandlab/internal/model"
	"github.com/vmphat/bandlab/internal/repository"
)

// bandBucketCount buckets span one band each: [0,1) .. [7,8), and the top
// bucket [8,9] absorbs a perfect 9.0.
const bandBucketCount = 9

// AggregatorService computes derived statistics over completed scores. It
// never errors on empty data: "no scores yet" is a valid, representable
// answer carried by the Count field, never by the average alone.
type AggregatorService interface {
	BandStats(learnerID *uint) (*dto.BandStatsResponse, error)
}

type aggregatorService struct {
	scoreRepo repository.ScoreRepository
}

func NewAggregatorService(scoreRepo repository.ScoreRepository) AggregatorService {
	return &aggregatorService{scoreRepo: scoreRepo}
}

func (s *aggregatorService) BandStats(learnerID *uint) (*dto.BandStatsResponse, error) {
	resp := &dto.BandStatsResponse{}
	for _, skill := range []model.Skill{model.SkillWriting, model.SkillSpeaking} {
		sk := skill
		scores, err := s.scoreRepo.FindAllCompleted(learnerID, &sk)
		if err != nil {
			return nil, err
		}
		average, count := AverageBand(scores)
		resp.Skills = append(resp.Skills, dto.SkillBandStatsDTO{
			Skill:        string(skill),
			Average:      average,
			Count:        count,
			Distribution: Distribution(scores),
		})
	}
	return resp, nil
}

// AverageBand returns the arithmetic mean of the overall bands plus the
// score count. An empty slice yields (0, 0), not an error.
func AverageBand(scores []model.Score) (float64, int) {
	if len(scores) == 0 {
		return 0, 0
	}
	total := 0.0
	for _, score := range scores {
		total += score.Band
	}
	return total / float64(len(scores)), len(scores)
}

// Distribution buckets bands across the full 0-9 range. Empty buckets are
// reported with a zero count so the output shape stays stable.
func Distribution(scores []model.Score) []dto.BandBucketDTO {
	buckets := make([]dto.BandBucketDTO, bandBucketCount)
	for i := range buckets {
		buckets[i].Lower = float64(i)
		buckets[i].Upper = float64(i + 1)
	}
	for _, score := range scores {
		idx := int(score.Band)
		if idx < 0 {
			idx = 0
		}
		if idx >= bandBucketCount {
			idx = bandBucketCount - 1
		}
		buckets[idx].Count++
	}
	return buckets
}
