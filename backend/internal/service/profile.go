package service

import (
	"context"

	"github.com/parley-dev/parley/shared/domain"
)

type ProfileService interface {
	Stats(ctx context.Context, owner domain.UserId) (domain.ConversationStats, error)
	Dashboard(ctx context.Context, owner domain.UserId) (domain.ConversationStats, []domain.AssistantActivity, error)
}

type ProfileStorage interface {
	UserStats(ctx context.Context, owner domain.UserId) (domain.ConversationStats, error)
	AssistantActivity(ctx context.Context, owner domain.UserId) ([]domain.AssistantActivity, error)
}

type Profile struct {
	storage ProfileStorage
}

func NewProfile(storage ProfileStorage) *Profile {
	return &Profile{storage: storage}
}

func (s *Profile) Stats(ctx context.Context, owner domain.UserId) (domain.ConversationStats, error) {
	return s.storage.UserStats(ctx, owner)
}

func (s *Profile) Dashboard(ctx context.Context, owner domain.UserId) (domain.ConversationStats, []domain.AssistantActivity, error) {
	stats, err := s.storage.UserStats(ctx, owner)
	if err != nil {
		return domain.ConversationStats{}, nil, err
	}
	activity, err := s.storage.AssistantActivity(ctx, owner)
	if err != nil {
		return domain.ConversationStats{}, nil, err
	}
	return stats, activity, nil
}
