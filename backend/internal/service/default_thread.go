package service

import (
	"context"

	"github.com/parley-dev/parley/backend/internal/inference"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
)

// DefaultThreadService backs the per-user thread used by clients that predate
// conversations.
type DefaultThreadService interface {
	Create(ctx context.Context, user domain.UserId) (string, error)
	Current(ctx context.Context, user domain.UserId) (string, error)
	Delete(ctx context.Context, user domain.UserId) error
}

type DefaultThreadStorage interface {
	UserById(ctx context.Context, id domain.UserId) (domain.User, error)
	SetDefaultThreadHandle(ctx context.Context, id domain.UserId, handle string) error
}

type ThreadCreator interface {
	CreateThread(ctx context.Context, seed []inference.NewMessage) (inference.Thread, error)
}

type DefaultThreads struct {
	storage DefaultThreadStorage
	client  ThreadCreator
	reaper  *Reaper
}

func NewDefaultThreads(storage DefaultThreadStorage, client ThreadCreator, reaper *Reaper) *DefaultThreads {
	return &DefaultThreads{storage: storage, client: client, reaper: reaper}
}

// Create opens a new default thread, replacing and releasing the previous one.
func (s *DefaultThreads) Create(ctx context.Context, user domain.UserId) (string, error) {
	u, err := s.storage.UserById(ctx, user)
	if err != nil {
		return "", err
	}
	thread, err := s.client.CreateThread(ctx, nil)
	if err != nil {
		return "", externalError("thread creation", err)
	}
	if err := s.storage.SetDefaultThreadHandle(ctx, user, thread.ID); err != nil {
		s.reaper.Release(ctx, domain.HandleThread, thread.ID)
		return "", err
	}
	s.reaper.Release(ctx, domain.HandleThread, u.DefaultThreadHandle)
	return thread.ID, nil
}

func (s *DefaultThreads) Current(ctx context.Context, user domain.UserId) (string, error) {
	u, err := s.storage.UserById(ctx, user)
	if err != nil {
		return "", err
	}
	if u.DefaultThreadHandle == "" {
		return "", internal_errors.NotFound("No active thread")
	}
	return u.DefaultThreadHandle, nil
}

func (s *DefaultThreads) Delete(ctx context.Context, user domain.UserId) error {
	u, err := s.storage.UserById(ctx, user)
	if err != nil {
		return err
	}
	if u.DefaultThreadHandle == "" {
		return internal_errors.NotFound("No active thread")
	}
	if err := s.storage.SetDefaultThreadHandle(ctx, user, ""); err != nil {
		return err
	}
	s.reaper.Release(ctx, domain.HandleThread, u.DefaultThreadHandle)
	return nil
}
