package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/parley-dev/parley/backend/internal/inference"
	"github.com/parley-dev/parley/shared/config"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	"github.com/parley-dev/parley/shared/logger"
)

type AssistantService interface {
	Create(ctx context.Context, data domain.AssistantCreationData) (domain.Assistant, error)
	Get(ctx context.Context, owner domain.UserId, id domain.AssistantId) (domain.Assistant, error)
	List(ctx context.Context, owner domain.UserId) ([]domain.Assistant, error)
	Update(ctx context.Context, data domain.AssistantUpdateData) (domain.Assistant, error)
	Delete(ctx context.Context, owner domain.UserId, id domain.AssistantId) error
	AttachFiles(ctx context.Context, owner domain.UserId, id domain.AssistantId, fileIds []domain.FileId) (domain.Assistant, error)
	DetachFile(ctx context.Context, owner domain.UserId, id domain.AssistantId, fileId domain.FileId) (domain.Assistant, error)
	Models() []string
	Tools() []domain.ToolInfo
}

type AssistantStorage interface {
	FileResolver
	SaveAssistant(ctx context.Context, a domain.Assistant) (domain.AssistantId, error)
	Assistant(ctx context.Context, owner domain.UserId, id domain.AssistantId) (domain.Assistant, error)
	ListAssistants(ctx context.Context, owner domain.UserId) ([]domain.Assistant, error)
	MutateAssistant(ctx context.Context, owner domain.UserId, id domain.AssistantId, fn MutateFunc) (domain.Assistant, error)
	DeleteAssistant(ctx context.Context, owner domain.UserId, id domain.AssistantId) error
	ConversationThreads(ctx context.Context, owner domain.UserId, assistant domain.AssistantId) ([]string, error)
}

type AssistantClient interface {
	CreateAssistant(ctx context.Context, params inference.AssistantParams) (inference.Assistant, error)
	UpdateAssistant(ctx context.Context, id string, params inference.AssistantParams) (inference.Assistant, error)
	CreateThread(ctx context.Context, seed []inference.NewMessage) (inference.Thread, error)
}

type Assistants struct {
	storage    AssistantStorage
	client     AssistantClient
	reconciler *Reconciler
	reaper     *Reaper
	cfg        *config.Public
}

func NewAssistants(storage AssistantStorage, client AssistantClient, reconciler *Reconciler, reaper *Reaper, cfg *config.Public) *Assistants {
	return &Assistants{storage: storage, client: client, reconciler: reconciler, reaper: reaper, cfg: cfg}
}

// toolDeclarations lists the tools the hosted service is told about. Web search
// and computer use are kept as user intent only, the assistants API has no
// equivalent tool.
func toolDeclarations(t domain.ToolSet) []inference.Tool {
	tools := []inference.Tool{}
	if t.CodeInterpreter {
		tools = append(tools, inference.Tool{Type: "code_interpreter"})
	}
	if t.FileSearch {
		tools = append(tools, inference.Tool{Type: "file_search"})
	}
	return tools
}

func (s *Assistants) checkModel(model string) error {
	if !slices.Contains(s.cfg.AvailableModels, model) {
		return internal_errors.BadRequest(fmt.Sprintf("Model %q is not available", model))
	}
	return nil
}

// Create registers the assistant externally, opens its thread and stores it.
// The external resources are released when a later step fails.
func (s *Assistants) Create(ctx context.Context, data domain.AssistantCreationData) (domain.Assistant, error) {
	model := data.Model
	if model == "" {
		model = s.cfg.DefaultModel
	}
	if err := s.checkModel(model); err != nil {
		return domain.Assistant{}, err
	}
	tools := domain.DefaultTools()
	if data.Tools != nil {
		tools = *data.Tools
	}

	records, err := ResolveFiles(ctx, s.storage, data.Owner, data.FileIds)
	if err != nil {
		return domain.Assistant{}, err
	}
	fileIds := unionIds(nil, data.FileIds)
	desired := Partition(records).CodeExecution

	ext, err := s.client.CreateAssistant(ctx, inference.AssistantParams{
		Model:         model,
		Name:          data.Name,
		Description:   data.Description,
		Instructions:  data.Instructions,
		Tools:         toolDeclarations(tools),
		ToolResources: inference.CodeInterpreterDeclaration(desired),
	})
	if err != nil {
		return domain.Assistant{}, externalError("assistant creation", err)
	}

	thread, err := s.client.CreateThread(ctx, nil)
	if err != nil {
		s.reaper.Release(ctx, domain.HandleAssistant, ext.ID)
		return domain.Assistant{}, externalError("thread creation", err)
	}

	a := domain.Assistant{
		ExternalHandle:  ext.ID,
		OwnerId:         data.Owner,
		Name:            data.Name,
		Description:     data.Description,
		Instructions:    data.Instructions,
		Model:           model,
		Tools:           tools,
		FileIds:         fileIds,
		DeclaredFileIds: desired,
		ThreadHandle:    thread.ID,
	}
	id, err := s.storage.SaveAssistant(ctx, a)
	if err != nil {
		s.reaper.ReleaseAll(ctx, []ExternalHandle{
			{Kind: domain.HandleAssistant, Handle: ext.ID},
			{Kind: domain.HandleThread, Handle: thread.ID},
		})
		return domain.Assistant{}, err
	}
	logger.Log.Info("assistant created", "assistant_id", id, "handle", ext.ID, "user_id", data.Owner)
	return s.storage.Assistant(ctx, data.Owner, id)
}

func (s *Assistants) Get(ctx context.Context, owner domain.UserId, id domain.AssistantId) (domain.Assistant, error) {
	return s.storage.Assistant(ctx, owner, id)
}

func (s *Assistants) List(ctx context.Context, owner domain.UserId) ([]domain.Assistant, error) {
	return s.storage.ListAssistants(ctx, owner)
}

// Update applies a partial change. New file ids are merged into the set, the
// whole configuration is pushed externally before anything is stored.
func (s *Assistants) Update(ctx context.Context, data domain.AssistantUpdateData) (domain.Assistant, error) {
	if data.Model != nil {
		if err := s.checkModel(*data.Model); err != nil {
			return domain.Assistant{}, err
		}
	}
	if _, err := ResolveFiles(ctx, s.storage, data.Owner, data.FileIds); err != nil {
		return domain.Assistant{}, err
	}

	return s.storage.MutateAssistant(ctx, data.Owner, data.Id, func(a *domain.Assistant, files FileResolver) error {
		if data.Name != nil {
			a.Name = *data.Name
		}
		if data.Description != nil {
			a.Description = *data.Description
		}
		if data.Instructions != nil {
			a.Instructions = *data.Instructions
		}
		if data.Model != nil {
			a.Model = *data.Model
		}
		if data.Tools != nil {
			a.Tools = *data.Tools
		}
		a.FileIds = unionIds(a.FileIds, data.FileIds)

		desired, err := s.reconciler.desired(ctx, files, data.Owner, a.FileIds)
		if err != nil {
			return err
		}
		_, err = s.client.UpdateAssistant(ctx, a.ExternalHandle, inference.AssistantParams{
			Model:         a.Model,
			Name:          a.Name,
			Description:   a.Description,
			Instructions:  a.Instructions,
			Tools:         toolDeclarations(a.Tools),
			ToolResources: inference.CodeInterpreterDeclaration(desired),
		})
		if err != nil {
			return externalError("assistant update", err)
		}
		a.DeclaredFileIds = desired
		return nil
	})
}

// Delete removes the assistant locally, then releases its external handle,
// its thread and the threads of its conversations.
func (s *Assistants) Delete(ctx context.Context, owner domain.UserId, id domain.AssistantId) error {
	a, err := s.storage.Assistant(ctx, owner, id)
	if err != nil {
		return err
	}
	threads, err := s.storage.ConversationThreads(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteAssistant(ctx, owner, id); err != nil {
		return err
	}

	handles := []ExternalHandle{
		{Kind: domain.HandleAssistant, Handle: a.ExternalHandle},
		{Kind: domain.HandleThread, Handle: a.ThreadHandle},
	}
	for _, t := range threads {
		handles = append(handles, ExternalHandle{Kind: domain.HandleThread, Handle: t})
	}
	s.reaper.ReleaseAll(ctx, handles)
	logger.Log.Info("assistant deleted", "assistant_id", id, "user_id", owner)
	return nil
}

func (s *Assistants) AttachFiles(ctx context.Context, owner domain.UserId, id domain.AssistantId, fileIds []domain.FileId) (domain.Assistant, error) {
	if len(fileIds) == 0 {
		return domain.Assistant{}, internal_errors.BadRequest("No files to attach")
	}
	return s.reconciler.AttachFiles(ctx, owner, id, fileIds)
}

func (s *Assistants) DetachFile(ctx context.Context, owner domain.UserId, id domain.AssistantId, fileId domain.FileId) (domain.Assistant, error) {
	return s.reconciler.DetachFile(ctx, owner, id, fileId)
}

func (s *Assistants) Models() []string {
	return s.cfg.AvailableModels
}

func (s *Assistants) Tools() []domain.ToolInfo {
	return domain.ToolCatalogue()
}
