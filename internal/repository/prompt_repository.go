package repository

import (
	"github.com/vmphat/bandlab/internal/model"
	"gorm.io/gorm"
)

type PromptRepository interface {
	Create(prompt *model.Prompt) error
	FindByID(id uint) (*model.Prompt, error)
	FindAll(skill *model.Skill) ([]model.Prompt, error)
}

type promptRepository struct {
	db *gorm.DB
}

func NewPromptRepository(db *gorm.DB) PromptRepository {
	return &promptRepository{db: db}
}

func (r *promptRepository) Create(prompt *model.Prompt) error {
	return r.db.Create(prompt).Error
}

func (r *promptRepository) FindByID(id uint) (*model.Prompt, error) {
	var prompt model.Prompt
	if err := r.db.First(&prompt, id).Error; err != nil {
		return nil, err
	}
	return &prompt, nil
}

func (r *promptRepository) FindAll(skill *model.Skill) ([]model.Prompt, error) {
	var prompts []model.Prompt
	query := r.db.Order("created_at desc")
	if skill != nil {
		query = query.Where("skill = ?", *skill)
	}
	err := query.Find(&prompts).Error
	return prompts, err
}
