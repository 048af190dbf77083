package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parley-dev/parley/backend/internal/inference"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
)

// --- Storage ---

// memStore is an in-memory stand-in for the pg storage. Function fields
// override single methods for failure injection.
type memStore struct {
	mu      sync.Mutex
	rowLock sync.Mutex

	inMutation            atomic.Bool
	poolLookupsInMutation atomic.Int32
	txLookups             atomic.Int32

	users         map[domain.UserId]domain.User
	resets        map[string]domain.PasswordReset
	files         map[domain.FileId]domain.FileRecord
	assistants    map[domain.AssistantId]domain.Assistant
	conversations map[domain.ConversationId]domain.Conversation
	messages      []domain.Message
	orphans       []domain.OrphanedHandle
	nextId        int64

	saveFileFunc              func(f domain.FileRecord) error
	saveAssistantFunc         func(a domain.Assistant) error
	setConversationThreadFunc func(id domain.ConversationId, handle string) error
	completeTurnFunc          func(prevHandle string, msg domain.Message) error
	queueOrphanFunc           func(kind domain.HandleKind, handle string) error

	resolvedOrphans []int64
	orphanAttempts  []int64
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[domain.UserId]domain.User),
		resets:        make(map[string]domain.PasswordReset),
		files:         make(map[domain.FileId]domain.FileRecord),
		assistants:    make(map[domain.AssistantId]domain.Assistant),
		conversations: make(map[domain.ConversationId]domain.Conversation),
	}
}

func (m *memStore) id() int64 {
	m.nextId++
	return m.nextId
}

func (m *memStore) addFile(owner domain.UserId, id domain.FileId, purpose domain.FilePurpose, mime string) domain.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := domain.FileRecord{FileId: id, OwnerId: owner, Purpose: purpose, MimeType: mime, OriginalName: id + ".bin", SizeBytes: 10}
	m.files[id] = f
	return f
}

func (m *memStore) addAssistant(a domain.Assistant) domain.Assistant {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Id = m.id()
	m.assistants[a.Id] = a
	return a
}

func (m *memStore) addConversation(c domain.Conversation) domain.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Id = m.id()
	m.conversations[c.Id] = c
	return c
}

func (m *memStore) assistantSnapshot(id domain.AssistantId) domain.Assistant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assistants[id]
}

// setAssistant edits a stored assistant without going through the row lock.
func (m *memStore) setAssistant(id domain.AssistantId, edit func(a *domain.Assistant)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.assistants[id]
	edit(&a)
	m.assistants[id] = a
}

func (m *memStore) conversationSnapshot(id domain.ConversationId) domain.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversations[id]
}

func (m *memStore) ledger(conv domain.ConversationId) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.messages {
		if msg.ConversationId == conv {
			out = append(out, msg)
		}
	}
	return out
}

// users

func (m *memStore) SaveUser(ctx context.Context, user domain.User) (domain.UserId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return 0, internal_errors.Conflict("Email is already registered")
		}
	}
	user.Id = m.id()
	m.users[user.Id] = user
	return user.Id, nil
}

func (m *memStore) UserByEmail(ctx context.Context, email domain.Email) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, internal_errors.NotFound("User not found")
}

func (m *memStore) UserById(ctx context.Context, id domain.UserId) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, internal_errors.NotFound("User not found")
	}
	return u, nil
}

func (m *memStore) UpdatePassword(ctx context.Context, id domain.UserId, passHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return internal_errors.NotFound("User not found")
	}
	u.PassHash = passHash
	m.users[id] = u
	return nil
}

func (m *memStore) UpdateEmail(ctx context.Context, id domain.UserId, email domain.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return internal_errors.NotFound("User not found for email update")
	}
	for other, existing := range m.users {
		if other != id && existing.Email == email {
			return internal_errors.Conflict("Email is already registered")
		}
	}
	u.Email = email
	m.users[id] = u
	return nil
}

func (m *memStore) DeleteUser(ctx context.Context, id domain.UserId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return internal_errors.NotFound("User not found for deletion")
	}
	delete(m.users, id)
	for k, f := range m.files {
		if f.OwnerId == id {
			delete(m.files, k)
		}
	}
	for k, a := range m.assistants {
		if a.OwnerId == id {
			delete(m.assistants, k)
		}
	}
	for k, c := range m.conversations {
		if c.OwnerId == id {
			delete(m.conversations, k)
		}
	}
	return nil
}

func (m *memStore) SetDefaultThreadHandle(ctx context.Context, id domain.UserId, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return internal_errors.NotFound("User not found")
	}
	u.DefaultThreadHandle = handle
	m.users[id] = u
	return nil
}

func (m *memStore) SavePasswordReset(ctx context.Context, reset domain.PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[reset.TokenHash] = reset
	return nil
}

func (m *memStore) ConsumePasswordReset(ctx context.Context, tokenHash string) (domain.PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[tokenHash]
	delete(m.resets, tokenHash)
	if !ok || r.ExpiresAt.Before(time.Now()) {
		return domain.PasswordReset{}, internal_errors.NotFound("Reset token not found")
	}
	return r, nil
}

// files

func (m *memStore) SaveFile(ctx context.Context, f domain.FileRecord) error {
	if m.saveFileFunc != nil {
		if err := m.saveFileFunc(f); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[f.FileId] = f
	return nil
}

func (m *memStore) File(ctx context.Context, owner domain.UserId, id domain.FileId) (domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok || f.OwnerId != owner {
		return domain.FileRecord{}, internal_errors.NotFound("File not found")
	}
	return f, nil
}

func (m *memStore) FileByHandle(ctx context.Context, id domain.FileId) (domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return domain.FileRecord{}, internal_errors.NotFound("File not found")
	}
	return f, nil
}

func (m *memStore) FilesByIds(ctx context.Context, owner domain.UserId, ids []domain.FileId) ([]domain.FileRecord, []domain.FileId, error) {
	if m.inMutation.Load() {
		m.poolLookupsInMutation.Add(1)
	}
	return m.filesByIds(owner, ids)
}

func (m *memStore) filesByIds(owner domain.UserId, ids []domain.FileId) ([]domain.FileRecord, []domain.FileId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		records []domain.FileRecord
		missing []domain.FileId
	)
	seen := map[domain.FileId]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		f, ok := m.files[id]
		if !ok || f.OwnerId != owner {
			missing = append(missing, id)
			continue
		}
		records = append(records, f)
	}
	return records, missing, nil
}

func (m *memStore) ListFiles(ctx context.Context, owner domain.UserId) ([]domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FileRecord
	for _, f := range m.files {
		if f.OwnerId == owner {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileId < out[j].FileId })
	return out, nil
}

func (m *memStore) DeleteFile(ctx context.Context, owner domain.UserId, id domain.FileId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok || f.OwnerId != owner {
		return internal_errors.NotFound("File not found")
	}
	delete(m.files, id)
	return nil
}

func (m *memStore) AssistantsReferencingFile(ctx context.Context, owner domain.UserId, id domain.FileId) ([]domain.AssistantId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AssistantId
	for _, a := range m.assistants {
		if a.OwnerId == owner && containsId(a.FileIds, id) {
			out = append(out, a.Id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func containsId(ids []domain.FileId, id domain.FileId) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// assistants

func (m *memStore) SaveAssistant(ctx context.Context, a domain.Assistant) (domain.AssistantId, error) {
	if m.saveAssistantFunc != nil {
		if err := m.saveAssistantFunc(a); err != nil {
			return 0, err
		}
	}
	return m.addAssistant(a).Id, nil
}

func (m *memStore) Assistant(ctx context.Context, owner domain.UserId, id domain.AssistantId) (domain.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assistants[id]
	if !ok || a.OwnerId != owner {
		return domain.Assistant{}, internal_errors.NotFound("Assistant not found")
	}
	return a, nil
}

func (m *memStore) ListAssistants(ctx context.Context, owner domain.UserId) ([]domain.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Assistant
	for _, a := range m.assistants {
		if a.OwnerId == owner {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

// MutateAssistant serializes mutations like the row lock does and stores the
// result only when fn succeeds. fn gets a resolver standing in for the
// transaction, lookups through the pool meanwhile are counted.
func (m *memStore) MutateAssistant(ctx context.Context, owner domain.UserId, id domain.AssistantId, fn MutateFunc) (domain.Assistant, error) {
	m.rowLock.Lock()
	defer m.rowLock.Unlock()

	m.mu.Lock()
	a, ok := m.assistants[id]
	m.mu.Unlock()
	if !ok || a.OwnerId != owner {
		return domain.Assistant{}, internal_errors.NotFound("Assistant not found")
	}
	a.FileIds = append([]domain.FileId(nil), a.FileIds...)
	a.DeclaredFileIds = append([]domain.FileId(nil), a.DeclaredFileIds...)

	m.inMutation.Store(true)
	err := fn(&a, txResolver{m: m})
	m.inMutation.Store(false)
	if err != nil {
		return domain.Assistant{}, err
	}
	m.mu.Lock()
	m.assistants[id] = a
	m.mu.Unlock()
	return a, nil
}

type txResolver struct{ m *memStore }

func (r txResolver) FilesByIds(ctx context.Context, owner domain.UserId, ids []domain.FileId) ([]domain.FileRecord, []domain.FileId, error) {
	r.m.txLookups.Add(1)
	return r.m.filesByIds(owner, ids)
}

func (m *memStore) DeleteAssistant(ctx context.Context, owner domain.UserId, id domain.AssistantId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assistants[id]
	if !ok || a.OwnerId != owner {
		return internal_errors.NotFound("Assistant not found")
	}
	delete(m.assistants, id)
	for k, c := range m.conversations {
		if c.AssistantId == id {
			delete(m.conversations, k)
		}
	}
	return nil
}

func (m *memStore) AssistantsOutOfSync(ctx context.Context, limit int) ([]domain.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Assistant
	for _, a := range m.assistants {
		var desired []domain.FileId
		for _, id := range a.FileIds {
			if f, ok := m.files[id]; ok && f.Purpose == domain.PurposeCodeExecution {
				desired = append(desired, id)
			}
		}
		if !sameSet(desired, a.DeclaredFileIds) {
			out = append(out, a)
		}
	}
	return out, nil
}

// conversations

func (m *memStore) SaveConversation(ctx context.Context, data domain.ConversationCreationData) (domain.Conversation, error) {
	m.mu.Lock()
	a, ok := m.assistants[data.AssistantId]
	m.mu.Unlock()
	if !ok || a.OwnerId != data.Owner {
		return domain.Conversation{}, internal_errors.NotFound("Assistant not found")
	}
	return m.addConversation(domain.Conversation{OwnerId: data.Owner, AssistantId: data.AssistantId, Title: data.Title}), nil
}

func (m *memStore) Conversation(ctx context.Context, owner domain.UserId, id domain.ConversationId) (domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || c.OwnerId != owner {
		return domain.Conversation{}, internal_errors.NotFound("Conversation not found")
	}
	return c, nil
}

func (m *memStore) ListConversations(ctx context.Context, owner domain.UserId) ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Conversation
	for _, c := range m.conversations {
		if c.OwnerId == owner {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) AssistantConversations(ctx context.Context, owner domain.UserId, assistant domain.AssistantId) ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Conversation
	for _, c := range m.conversations {
		if c.OwnerId == owner && c.AssistantId == assistant {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (m *memStore) ConversationThreads(ctx context.Context, owner domain.UserId, assistant domain.AssistantId) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.conversations {
		if c.OwnerId == owner && c.ThreadHandle != "" && (assistant < 0 || c.AssistantId == assistant) {
			out = append(out, c.ThreadHandle)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) DeleteConversation(ctx context.Context, owner domain.UserId, id domain.ConversationId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || c.OwnerId != owner {
		return internal_errors.NotFound("Conversation not found")
	}
	delete(m.conversations, id)
	return nil
}

func (m *memStore) SetConversationThread(ctx context.Context, id domain.ConversationId, handle string) error {
	if m.setConversationThreadFunc != nil {
		if err := m.setConversationThreadFunc(id, handle); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conversations[id]
	c.ThreadHandle = handle
	if handle == "" {
		c.LastTurnHandle = ""
	}
	m.conversations[id] = c
	return nil
}

func (m *memStore) Messages(ctx context.Context, owner domain.UserId, conversation domain.ConversationId) ([]domain.Message, error) {
	if _, err := m.Conversation(ctx, owner, conversation); err != nil {
		return nil, err
	}
	return m.ledger(conversation), nil
}

func (m *memStore) RecentMessages(ctx context.Context, conversation domain.ConversationId, limit int) ([]domain.Message, error) {
	all := m.ledger(conversation)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memStore) AppendMessage(ctx context.Context, msg domain.Message) (domain.MessageId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conversations[msg.ConversationId]
	c.MessageCount++
	m.conversations[msg.ConversationId] = c
	msg.Id = m.id()
	m.messages = append(m.messages, msg)
	return msg.Id, nil
}

func (m *memStore) CompleteTurn(ctx context.Context, prevHandle string, msg domain.Message) (domain.MessageId, error) {
	if m.completeTurnFunc != nil {
		if err := m.completeTurnFunc(prevHandle, msg); err != nil {
			return 0, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conversations[msg.ConversationId]
	if c.LastTurnHandle != prevHandle {
		return 0, internal_errors.Conflict("Conversation was modified by another turn")
	}
	c.LastTurnHandle = msg.TurnHandle
	c.MessageCount++
	m.conversations[msg.ConversationId] = c
	msg.Id = m.id()
	m.messages = append(m.messages, msg)
	return msg.Id, nil
}

// orphans

func (m *memStore) QueueOrphanedHandle(ctx context.Context, kind domain.HandleKind, handle string, cause error) error {
	if m.queueOrphanFunc != nil {
		return m.queueOrphanFunc(kind, handle)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphans = append(m.orphans, domain.OrphanedHandle{Id: m.id(), Kind: kind, Handle: handle, LastError: cause.Error()})
	return nil
}

func (m *memStore) OrphanedHandles(ctx context.Context, limit int) ([]domain.OrphanedHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrphanedHandle(nil), m.orphans...), nil
}

func (m *memStore) ResolveOrphanedHandle(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvedOrphans = append(m.resolvedOrphans, id)
	for i, o := range m.orphans {
		if o.Id == id {
			m.orphans = append(m.orphans[:i], m.orphans[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memStore) RecordOrphanAttempt(ctx context.Context, id int64, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphanAttempts = append(m.orphanAttempts, id)
	return nil
}

func (m *memStore) queuedOrphans() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.orphans))
	for _, o := range m.orphans {
		out = append(out, string(o.Kind)+":"+o.Handle)
	}
	sort.Strings(out)
	return out
}

// --- Inference ---

// mockInference records every side effecting call. Defaults succeed.
type mockInference struct {
	mu sync.Mutex

	createAssistantFunc func(params inference.AssistantParams) (inference.Assistant, error)
	updateAssistantFunc func(id string, params inference.AssistantParams) (inference.Assistant, error)
	declareFunc         func(id string, fileIDs []string) error
	createThreadFunc    func(seed []inference.NewMessage) (inference.Thread, error)
	createMessageFunc   func(threadID string, msg inference.NewMessage) (inference.Message, error)
	listMessagesFunc    func(threadID, runID string) ([]inference.Message, error)
	createRunFunc       func(threadID string, params inference.RunParams) (inference.Run, error)
	getRunFunc          func(threadID, runID string) (inference.Run, error)
	cancelRunFunc       func(threadID, runID string) error
	listRunStepsFunc    func(threadID, runID string) ([]inference.RunStep, error)
	streamRunFunc       func(ctx context.Context, threadID string, params inference.RunParams, handle func(inference.StreamEvent) error) (inference.Run, error)
	uploadFileFunc      func(filename, purpose string, data []byte) (inference.File, error)
	fileContentFunc     func(id string) (io.ReadCloser, string, error)
	deleteFunc          func(kind domain.HandleKind, id string) error

	counter         int
	declared        map[string][][]string
	updates         []inference.AssistantParams
	created         []inference.AssistantParams
	threadSeeds     [][]inference.NewMessage
	messages        []inference.NewMessage
	runs            []inference.RunParams
	cancelled       []string
	deleted         []string
	uploadedPurpose []string
}

func newMockInference() *mockInference {
	return &mockInference{declared: make(map[string][][]string)}
}

func (m *mockInference) next(prefix string) string {
	m.counter++
	return fmt.Sprintf("%s_%d", prefix, m.counter)
}

func (m *mockInference) declarations(handle string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.declared[handle]
}

func (m *mockInference) deletedHandles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.deleted...)
	sort.Strings(out)
	return out
}

func (m *mockInference) CreateAssistant(ctx context.Context, params inference.AssistantParams) (inference.Assistant, error) {
	m.mu.Lock()
	m.created = append(m.created, params)
	id := m.next("asst")
	m.mu.Unlock()
	if m.createAssistantFunc != nil {
		return m.createAssistantFunc(params)
	}
	return inference.Assistant{ID: id, Model: params.Model, Name: params.Name}, nil
}

func (m *mockInference) UpdateAssistant(ctx context.Context, id string, params inference.AssistantParams) (inference.Assistant, error) {
	if m.updateAssistantFunc != nil {
		if _, err := m.updateAssistantFunc(id, params); err != nil {
			return inference.Assistant{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, params)
	if params.ToolResources != nil && params.ToolResources.CodeInterpreter != nil {
		m.declared[id] = append(m.declared[id], params.ToolResources.CodeInterpreter.FileIDs)
	}
	return inference.Assistant{ID: id, Model: params.Model}, nil
}

func (m *mockInference) DeclareCodeExecutionFiles(ctx context.Context, id string, fileIDs []string) error {
	if m.declareFunc != nil {
		if err := m.declareFunc(id, fileIDs); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.declared[id] = append(m.declared[id], append([]string{}, fileIDs...))
	return nil
}

func (m *mockInference) del(kind domain.HandleKind, id string) error {
	if m.deleteFunc != nil {
		if err := m.deleteFunc(kind, id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, string(kind)+":"+id)
	return nil
}

func (m *mockInference) DeleteAssistant(ctx context.Context, id string) error {
	return m.del(domain.HandleAssistant, id)
}

func (m *mockInference) DeleteThread(ctx context.Context, id string) error {
	return m.del(domain.HandleThread, id)
}

func (m *mockInference) DeleteFile(ctx context.Context, id string) error {
	return m.del(domain.HandleFile, id)
}

func (m *mockInference) CreateThread(ctx context.Context, seed []inference.NewMessage) (inference.Thread, error) {
	m.mu.Lock()
	m.threadSeeds = append(m.threadSeeds, seed)
	id := m.next("thread")
	m.mu.Unlock()
	if m.createThreadFunc != nil {
		return m.createThreadFunc(seed)
	}
	return inference.Thread{ID: id}, nil
}

func (m *mockInference) CreateMessage(ctx context.Context, threadID string, msg inference.NewMessage) (inference.Message, error) {
	if m.createMessageFunc != nil {
		return m.createMessageFunc(threadID, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return inference.Message{ID: m.next("msg"), ThreadID: threadID, Role: msg.Role}, nil
}

func (m *mockInference) ListMessages(ctx context.Context, threadID, runID string, limit int) ([]inference.Message, error) {
	if m.listMessagesFunc != nil {
		return m.listMessagesFunc(threadID, runID)
	}
	return nil, nil
}

func (m *mockInference) CreateRun(ctx context.Context, threadID string, params inference.RunParams) (inference.Run, error) {
	m.mu.Lock()
	m.runs = append(m.runs, params)
	m.mu.Unlock()
	if m.createRunFunc != nil {
		return m.createRunFunc(threadID, params)
	}
	return inference.Run{ID: "run_1", ThreadID: threadID, Status: "completed"}, nil
}

func (m *mockInference) GetRun(ctx context.Context, threadID, runID string) (inference.Run, error) {
	if m.getRunFunc != nil {
		return m.getRunFunc(threadID, runID)
	}
	return inference.Run{ID: runID, ThreadID: threadID, Status: "completed"}, nil
}

func (m *mockInference) CancelRun(ctx context.Context, threadID, runID string) error {
	m.mu.Lock()
	m.cancelled = append(m.cancelled, runID)
	m.mu.Unlock()
	if m.cancelRunFunc != nil {
		return m.cancelRunFunc(threadID, runID)
	}
	return nil
}

func (m *mockInference) cancelledRuns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelled...)
}

func (m *mockInference) ListRunSteps(ctx context.Context, threadID, runID string) ([]inference.RunStep, error) {
	if m.listRunStepsFunc != nil {
		return m.listRunStepsFunc(threadID, runID)
	}
	return nil, nil
}

func (m *mockInference) StreamRun(ctx context.Context, threadID string, params inference.RunParams, handle func(inference.StreamEvent) error) (inference.Run, error) {
	m.mu.Lock()
	m.runs = append(m.runs, params)
	m.mu.Unlock()
	if m.streamRunFunc != nil {
		return m.streamRunFunc(ctx, threadID, params, handle)
	}
	run := inference.Run{ID: "run_1", ThreadID: threadID, Status: "completed"}
	return run, handle(inference.StreamEvent{Kind: inference.EventRunUpdate, Run: run})
}

func (m *mockInference) UploadFile(ctx context.Context, filename, purpose string, data io.Reader) (inference.File, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return inference.File{}, err
	}
	m.mu.Lock()
	m.uploadedPurpose = append(m.uploadedPurpose, purpose)
	id := m.next("file")
	m.mu.Unlock()
	if m.uploadFileFunc != nil {
		return m.uploadFileFunc(filename, purpose, body)
	}
	return inference.File{ID: id, Filename: filename, Purpose: purpose, Bytes: int64(len(body))}, nil
}

func (m *mockInference) FileContent(ctx context.Context, id string) (io.ReadCloser, string, error) {
	if m.fileContentFunc != nil {
		return m.fileContentFunc(id)
	}
	return io.NopCloser(strings.NewReader("content of " + id)), "application/octet-stream", nil
}

// --- Helpers ---

// fixture wires the services the way setup does, over memStore and mockInference.
type fixture struct {
	store      *memStore
	client     *mockInference
	reconciler *Reconciler
	reaper     *Reaper
}

func newFixture() *fixture {
	store := newMemStore()
	client := newMockInference()
	return &fixture{
		store:      store,
		client:     client,
		reconciler: NewReconciler(store, client),
		reaper:     NewReaper(store, client),
	}
}

// externalFailure is what the inference client returns for a rejected call.
func externalFailure(status int) error {
	return &inference.APIError{StatusCode: status, Message: "rejected"}
}
