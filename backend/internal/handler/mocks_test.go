package handler

import (
	"context"
	"io"
	"strings"

	"github.com/parley-dev/parley/shared/domain"
)

type MockAuthService struct {
	MockRegister       func(creds domain.Credentials) (domain.User, string, error)
	MockLogin          func(creds domain.Credentials) (domain.User, string, error)
	MockMe             func(id domain.UserId) (domain.User, error)
	MockUpdateEmail    func(id domain.UserId, email domain.Email) (domain.User, string, error)
	MockChangePassword func(id domain.UserId, oldPassword, newPassword domain.Password) (string, error)
	MockForgotPassword func(email domain.Email) error
	MockResetPassword  func(token string, newPassword domain.Password) error
	MockDeleteAccount  func(id domain.UserId) error
}

func (m *MockAuthService) Register(ctx context.Context, creds domain.Credentials) (domain.User, string, error) {
	if m.MockRegister != nil {
		return m.MockRegister(creds)
	}
	return domain.User{}, "", nil
}

func (m *MockAuthService) Login(ctx context.Context, creds domain.Credentials) (domain.User, string, error) {
	if m.MockLogin != nil {
		return m.MockLogin(creds)
	}
	return domain.User{}, "", nil
}

func (m *MockAuthService) Me(ctx context.Context, id domain.UserId) (domain.User, error) {
	if m.MockMe != nil {
		return m.MockMe(id)
	}
	return domain.User{Id: id}, nil
}

func (m *MockAuthService) UpdateEmail(ctx context.Context, id domain.UserId, email domain.Email) (domain.User, string, error) {
	if m.MockUpdateEmail != nil {
		return m.MockUpdateEmail(id, email)
	}
	return domain.User{Id: id, Email: email}, "", nil
}

func (m *MockAuthService) ChangePassword(ctx context.Context, id domain.UserId, oldPassword, newPassword domain.Password) (string, error) {
	if m.MockChangePassword != nil {
		return m.MockChangePassword(id, oldPassword, newPassword)
	}
	return "", nil
}

func (m *MockAuthService) ForgotPassword(ctx context.Context, email domain.Email) error {
	if m.MockForgotPassword != nil {
		return m.MockForgotPassword(email)
	}
	return nil
}

func (m *MockAuthService) ResetPassword(ctx context.Context, token string, newPassword domain.Password) error {
	if m.MockResetPassword != nil {
		return m.MockResetPassword(token, newPassword)
	}
	return nil
}

func (m *MockAuthService) DeleteAccount(ctx context.Context, id domain.UserId) error {
	if m.MockDeleteAccount != nil {
		return m.MockDeleteAccount(id)
	}
	return nil
}

type MockAssistantService struct {
	MockCreate      func(data domain.AssistantCreationData) (domain.Assistant, error)
	MockGet         func(owner domain.UserId, id domain.AssistantId) (domain.Assistant, error)
	MockList        func(owner domain.UserId) ([]domain.Assistant, error)
	MockUpdate      func(data domain.AssistantUpdateData) (domain.Assistant, error)
	MockDelete      func(owner domain.UserId, id domain.AssistantId) error
	MockAttachFiles func(owner domain.UserId, id domain.AssistantId, fileIds []domain.FileId) (domain.Assistant, error)
	MockDetachFile  func(owner domain.UserId, id domain.AssistantId, fileId domain.FileId) (domain.Assistant, error)
	MockModels      func() []string
	MockTools       func() []domain.ToolInfo
}

func (m *MockAssistantService) Create(ctx context.Context, data domain.AssistantCreationData) (domain.Assistant, error) {
	if m.MockCreate != nil {
		return m.MockCreate(data)
	}
	return domain.Assistant{}, nil
}

func (m *MockAssistantService) Get(ctx context.Context, owner domain.UserId, id domain.AssistantId) (domain.Assistant, error) {
	if m.MockGet != nil {
		return m.MockGet(owner, id)
	}
	return domain.Assistant{Id: id, OwnerId: owner}, nil
}

func (m *MockAssistantService) List(ctx context.Context, owner domain.UserId) ([]domain.Assistant, error) {
	if m.MockList != nil {
		return m.MockList(owner)
	}
	return nil, nil
}

func (m *MockAssistantService) Update(ctx context.Context, data domain.AssistantUpdateData) (domain.Assistant, error) {
	if m.MockUpdate != nil {
		return m.MockUpdate(data)
	}
	return domain.Assistant{Id: data.Id}, nil
}

func (m *MockAssistantService) Delete(ctx context.Context, owner domain.UserId, id domain.AssistantId) error {
	if m.MockDelete != nil {
		return m.MockDelete(owner, id)
	}
	return nil
}

func (m *MockAssistantService) AttachFiles(ctx context.Context, owner domain.UserId, id domain.AssistantId, fileIds []domain.FileId) (domain.Assistant, error) {
	if m.MockAttachFiles != nil {
		return m.MockAttachFiles(owner, id, fileIds)
	}
	return domain.Assistant{Id: id, FileIds: fileIds}, nil
}

func (m *MockAssistantService) DetachFile(ctx context.Context, owner domain.UserId, id domain.AssistantId, fileId domain.FileId) (domain.Assistant, error) {
	if m.MockDetachFile != nil {
		return m.MockDetachFile(owner, id, fileId)
	}
	return domain.Assistant{Id: id}, nil
}

func (m *MockAssistantService) Models() []string {
	if m.MockModels != nil {
		return m.MockModels()
	}
	return nil
}

func (m *MockAssistantService) Tools() []domain.ToolInfo {
	if m.MockTools != nil {
		return m.MockTools()
	}
	return domain.ToolCatalogue()
}

type MockFileService struct {
	MockUpload      func(upload domain.FileUpload) (domain.FileRecord, error)
	MockGet         func(owner domain.UserId, id domain.FileId) (domain.FileRecord, error)
	MockList        func(owner domain.UserId) ([]domain.FileRecord, error)
	MockByPurpose   func(owner domain.UserId) (map[domain.FilePurpose]map[domain.FileId]string, error)
	MockContent     func(owner domain.UserId, id domain.FileId) (io.ReadCloser, string, error)
	MockPublicImage func(id domain.FileId) (io.ReadCloser, string, error)
	MockPreview     func(owner domain.UserId, id domain.FileId) ([]byte, string, error)
	MockDelete      func(owner domain.UserId, id domain.FileId) error
}

func (m *MockFileService) Upload(ctx context.Context, upload domain.FileUpload) (domain.FileRecord, error) {
	if m.MockUpload != nil {
		return m.MockUpload(upload)
	}
	return domain.FileRecord{}, nil
}

func (m *MockFileService) Get(ctx context.Context, owner domain.UserId, id domain.FileId) (domain.FileRecord, error) {
	if m.MockGet != nil {
		return m.MockGet(owner, id)
	}
	return domain.FileRecord{FileId: id, OwnerId: owner}, nil
}

func (m *MockFileService) List(ctx context.Context, owner domain.UserId) ([]domain.FileRecord, error) {
	if m.MockList != nil {
		return m.MockList(owner)
	}
	return nil, nil
}

func (m *MockFileService) ByPurpose(ctx context.Context, owner domain.UserId) (map[domain.FilePurpose]map[domain.FileId]string, error) {
	if m.MockByPurpose != nil {
		return m.MockByPurpose(owner)
	}
	return nil, nil
}

func (m *MockFileService) Content(ctx context.Context, owner domain.UserId, id domain.FileId) (io.ReadCloser, string, error) {
	if m.MockContent != nil {
		return m.MockContent(owner, id)
	}
	return io.NopCloser(strings.NewReader("")), "", nil
}

func (m *MockFileService) PublicImage(ctx context.Context, id domain.FileId) (io.ReadCloser, string, error) {
	if m.MockPublicImage != nil {
		return m.MockPublicImage(id)
	}
	return io.NopCloser(strings.NewReader("")), "", nil
}

func (m *MockFileService) Preview(ctx context.Context, owner domain.UserId, id domain.FileId) ([]byte, string, error) {
	if m.MockPreview != nil {
		return m.MockPreview(owner, id)
	}
	return nil, "", nil
}

func (m *MockFileService) Delete(ctx context.Context, owner domain.UserId, id domain.FileId) error {
	if m.MockDelete != nil {
		return m.MockDelete(owner, id)
	}
	return nil
}

type MockConversationService struct {
	MockCreate       func(data domain.ConversationCreationData) (domain.Conversation, error)
	MockGet          func(owner domain.UserId, id domain.ConversationId) (domain.Conversation, error)
	MockList         func(owner domain.UserId) ([]domain.Conversation, error)
	MockListByAsst   func(owner domain.UserId, assistant domain.AssistantId) ([]domain.Conversation, error)
	MockMessages     func(owner domain.UserId, id domain.ConversationId) ([]domain.Message, error)
	MockDelete       func(owner domain.UserId, id domain.ConversationId) error
	MockResetContext func(owner domain.UserId, id domain.ConversationId) (domain.Conversation, error)
}

func (m *MockConversationService) Create(ctx context.Context, data domain.ConversationCreationData) (domain.Conversation, error) {
	if m.MockCreate != nil {
		return m.MockCreate(data)
	}
	return domain.Conversation{}, nil
}

func (m *MockConversationService) Get(ctx context.Context, owner domain.UserId, id domain.ConversationId) (domain.Conversation, error) {
	if m.MockGet != nil {
		return m.MockGet(owner, id)
	}
	return domain.Conversation{Id: id, OwnerId: owner}, nil
}

func (m *MockConversationService) List(ctx context.Context, owner domain.UserId) ([]domain.Conversation, error) {
	if m.MockList != nil {
		return m.MockList(owner)
	}
	return nil, nil
}

func (m *MockConversationService) ListByAssistant(ctx context.Context, owner domain.UserId, assistant domain.AssistantId) ([]domain.Conversation, error) {
	if m.MockListByAsst != nil {
		return m.MockListByAsst(owner, assistant)
	}
	return nil, nil
}

func (m *MockConversationService) Messages(ctx context.Context, owner domain.UserId, id domain.ConversationId) ([]domain.Message, error) {
	if m.MockMessages != nil {
		return m.MockMessages(owner, id)
	}
	return nil, nil
}

func (m *MockConversationService) Delete(ctx context.Context, owner domain.UserId, id domain.ConversationId) error {
	if m.MockDelete != nil {
		return m.MockDelete(owner, id)
	}
	return nil
}

func (m *MockConversationService) ResetContext(ctx context.Context, owner domain.UserId, id domain.ConversationId) (domain.Conversation, error) {
	if m.MockResetContext != nil {
		return m.MockResetContext(owner, id)
	}
	return domain.Conversation{Id: id, OwnerId: owner}, nil
}

type MockTurnService struct {
	MockSend   func(req domain.TurnRequest) (domain.TurnResult, error)
	MockStream func(ctx context.Context, req domain.TurnRequest, emit func(domain.ContentBlock) error) (domain.TurnResult, error)
}

func (m *MockTurnService) Send(ctx context.Context, req domain.TurnRequest) (domain.TurnResult, error) {
	if m.MockSend != nil {
		return m.MockSend(req)
	}
	return domain.TurnResult{}, nil
}

func (m *MockTurnService) Stream(ctx context.Context, req domain.TurnRequest, emit func(domain.ContentBlock) error) (domain.TurnResult, error) {
	if m.MockStream != nil {
		return m.MockStream(ctx, req, emit)
	}
	return domain.TurnResult{}, nil
}

type MockDefaultThreadService struct {
	MockCreate  func(user domain.UserId) (string, error)
	MockCurrent func(user domain.UserId) (string, error)
	MockDelete  func(user domain.UserId) error
}

func (m *MockDefaultThreadService) Create(ctx context.Context, user domain.UserId) (string, error) {
	if m.MockCreate != nil {
		return m.MockCreate(user)
	}
	return "", nil
}

func (m *MockDefaultThreadService) Current(ctx context.Context, user domain.UserId) (string, error) {
	if m.MockCurrent != nil {
		return m.MockCurrent(user)
	}
	return "", nil
}

func (m *MockDefaultThreadService) Delete(ctx context.Context, user domain.UserId) error {
	if m.MockDelete != nil {
		return m.MockDelete(user)
	}
	return nil
}

type MockProfileService struct {
	MockStats     func(owner domain.UserId) (domain.ConversationStats, error)
	MockDashboard func(owner domain.UserId) (domain.ConversationStats, []domain.AssistantActivity, error)
}

func (m *MockProfileService) Stats(ctx context.Context, owner domain.UserId) (domain.ConversationStats, error) {
	if m.MockStats != nil {
		return m.MockStats(owner)
	}
	return domain.ConversationStats{}, nil
}

func (m *MockProfileService) Dashboard(ctx context.Context, owner domain.UserId) (domain.ConversationStats, []domain.AssistantActivity, error) {
	if m.MockDashboard != nil {
		return m.MockDashboard(owner)
	}
	return domain.ConversationStats{}, nil, nil
}

// MockRenderer wraps text in a marker so tests can tell rendered output apart.
type MockRenderer struct{}

func (MockRenderer) Render(text string) string {
	if text == "" {
		return ""
	}
	return "<p>" + text + "</p>"
}
