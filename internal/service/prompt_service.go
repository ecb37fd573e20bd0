package service

import (
	"errors"
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/vmphat/bandlab/internal/dto"
	"github.com/vmphat/bandlab/internal/model"
	"github.com/vmphat/bandlab/internal/repository"
	"gorm.io/gorm"
)

// PromptService manages the practice prompts learners attempt. The scoring
// pipeline itself only ever reads prompts.
type PromptService interface {
	CreatePrompt(req dto.CreatePromptRequest) (*dto.PromptDTO, error)
	GetPrompt(promptID uint) (*dto.PromptDTO, error)
	GetAllPrompts(skill *model.Skill) ([]dto.PromptDTO, error)
}

type promptService struct {
	promptRepo repository.PromptRepository
}

func NewPromptService(promptRepo repository.PromptRepository) PromptService {
	return &promptService{promptRepo: promptRepo}
}

func (s *promptService) CreatePrompt(req dto.CreatePromptRequest) (*dto.PromptDTO, error) {
	prompt := model.Prompt{
		Skill:              model.Skill(req.Skill),
		Title:              req.Title,
		Text:               req.Text,
		PreparationSeconds: req.PreparationSeconds,
		ResponseSeconds:    req.ResponseSeconds,
		MinWords:           req.MinWords,
	}
	if err := s.promptRepo.Create(&prompt); err != nil {
		log.Error().Err(err).Str("title", req.Title).Msg("Failed to create prompt")
		return nil, err
	}

	var resp dto.PromptDTO
	copier.Copy(&resp, &prompt)
	resp.Skill = string(prompt.Skill)
	return &resp, nil
}

func (s *promptService) GetPrompt(promptID uint) (*dto.PromptDTO, error) {
	prompt, err := s.promptRepo.FindByID(promptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "prompt", ID: promptID}
		}
		return nil, fmt.Errorf("error fetching prompt %d: %w", promptID, err)
	}
	var resp dto.PromptDTO
	copier.Copy(&resp, prompt)
	resp.Skill = string(prompt.Skill)
	return &resp, nil
}

func (s *promptService) GetAllPrompts(skill *model.Skill) ([]dto.PromptDTO, error) {
	prompts, err := s.promptRepo.FindAll(skill)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list prompts")
		return nil, err
	}
	dtos := make([]dto.PromptDTO, 0, len(prompts))
	for _, prompt := range prompts {
		var d dto.PromptDTO
		copier.Copy(&d, &prompt)
		d.Skill = string(prompt.Skill)
		dtos = append(dtos, d)
	}
	return dtos, nil
}
