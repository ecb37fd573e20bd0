package service

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vmphat/bandlab/config"
)

const (
	MinBand float64 = 0.0
	MaxBand float64 = 9.0
)

// BandConverterService maps heterogeneous model outputs into IELTS band
// space. The CEFR table is supplied by configuration, not hardcoded here.
type BandConverterService interface {
	// CEFRToBand maps a CEFR level (A1..C2) to a band. An unknown or
	// malformed level yields the configured fallback band and fallback=true;
	// it never fails.
	CEFRToBand(level string) (band float64, fallback bool)
	// ClampBand pins a band into the valid 0.0-9.0 range.
	ClampBand(band float64) float64
}

type bandConverterService struct {
	table        map[string]float64
	fallbackBand float64
}

func NewBandConverterService(cfg *config.Config) BandConverterService {
	return &bandConverterService{
		table:        cfg.Scoring.CEFRBands,
		fallbackBand: cfg.Scoring.FallbackBand,
	}
}

func (s *bandConverterService) CEFRToBand(level string) (float64, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(level))
	if band, ok := s.table[normalized]; ok {
		return band, false
	}
	log.Warn().Str("cefr_level", level).Float64("fallback_band", s.fallbackBand).
		Msg("Unrecognized CEFR level, using fallback band")
	return s.fallbackBand, true
}

func (s *bandConverterService) ClampBand(band float64) float64 {
	if band < MinBand {
		return MinBand
	}
	if band > MaxBand {
		return MaxBand
	}
	return band
}
