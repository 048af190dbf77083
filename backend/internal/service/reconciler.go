package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
)

type FileResolver = domain.FileResolver

// MutateFunc changes a locked assistant. files reads through the same
// transaction that holds the lock.
type MutateFunc = func(a *domain.Assistant, files FileResolver) error

// ReconcilerStorage reads files on the pool for up-front validation and
// mutates assistants under a row lock.
type ReconcilerStorage interface {
	FileResolver
	Assistant(ctx context.Context, owner domain.UserId, id domain.AssistantId) (domain.Assistant, error)
	MutateAssistant(ctx context.Context, owner domain.UserId, id domain.AssistantId, fn MutateFunc) (domain.Assistant, error)
}

// Declarer replaces the code execution file list of a hosted assistant. An
// empty list clears it.
type Declarer interface {
	DeclareCodeExecutionFiles(ctx context.Context, id string, fileIDs []string) error
}

// Reconciler keeps the hosted code execution resource of every assistant equal
// to the code execution subset of its attached files. The external declaration
// always happens first, local state is written only after it succeeded.
//
// Every declaration runs under the assistant's row lock, so two declarations
// for one assistant never interleave and the last one reflects the stored
// file set. Vision and document search files are never declared.
type Reconciler struct {
	storage ReconcilerStorage
	client  Declarer
}

var (
	errNothingToDetach = errors.New("file is not attached")
	errInSync          = errors.New("declaration is current")
)

func NewReconciler(storage ReconcilerStorage, client Declarer) *Reconciler {
	return &Reconciler{storage: storage, client: client}
}

// Classify reports whether f is handled as an image.
func Classify(f domain.FileRecord) bool {
	return f.IsImage()
}

// Partition splits files by purpose, dropping duplicate ids and keeping first-seen order.
func Partition(files []domain.FileRecord) domain.ToolResources {
	var res domain.ToolResources
	seen := make(map[domain.FileId]bool, len(files))
	for _, f := range files {
		if seen[f.FileId] {
			continue
		}
		seen[f.FileId] = true
		switch f.Purpose {
		case domain.PurposeVision:
			res.Vision = append(res.Vision, f.FileId)
		case domain.PurposeDocumentSearch:
			res.DocumentSearch = append(res.DocumentSearch, f.FileId)
		default:
			res.CodeExecution = append(res.CodeExecution, f.FileId)
		}
	}
	return res
}

// ResolveFiles maps ids to the owner's records. Any id that does not resolve
// fails the whole call.
func ResolveFiles(ctx context.Context, storage FileResolver, owner domain.UserId, ids []domain.FileId) ([]domain.FileRecord, error) {
	records, missing, err := storage.FilesByIds(ctx, owner, ids)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, internal_errors.NotFound("Files not found: " + strings.Join(missing, ", "))
	}
	return records, nil
}

// AttachFiles merges ids into the assistant's file set and redeclares.
func (r *Reconciler) AttachFiles(ctx context.Context, owner domain.UserId, assistantId domain.AssistantId, ids []domain.FileId) (domain.Assistant, error) {
	if _, err := ResolveFiles(ctx, r.storage, owner, ids); err != nil {
		return domain.Assistant{}, err
	}

	return r.storage.MutateAssistant(ctx, owner, assistantId, func(a *domain.Assistant, files FileResolver) error {
		union := unionIds(a.FileIds, ids)
		desired, err := r.desired(ctx, files, owner, union)
		if err != nil {
			return err
		}
		if err := r.declare(ctx, a.ExternalHandle, desired); err != nil {
			return err
		}
		a.FileIds = union
		a.DeclaredFileIds = desired
		return nil
	})
}

// DetachFile removes one id. Detaching a file that is not attached is a no-op
// and makes no external call.
func (r *Reconciler) DetachFile(ctx context.Context, owner domain.UserId, assistantId domain.AssistantId, fileId domain.FileId) (domain.Assistant, error) {
	updated, err := r.storage.MutateAssistant(ctx, owner, assistantId, func(a *domain.Assistant, files FileResolver) error {
		if !slices.Contains(a.FileIds, fileId) {
			return errNothingToDetach
		}
		remaining := slices.DeleteFunc(slices.Clone(a.FileIds), func(id domain.FileId) bool { return id == fileId })
		desired, err := r.desired(ctx, files, owner, remaining)
		if err != nil {
			return err
		}
		if err := r.declare(ctx, a.ExternalHandle, desired); err != nil {
			return err
		}
		a.FileIds = remaining
		a.DeclaredFileIds = desired
		return nil
	})
	if errors.Is(err, errNothingToDetach) {
		return r.storage.Assistant(ctx, owner, assistantId)
	}
	return updated, err
}

// Reconcile pushes the desired declaration only when it differs from the last
// accepted one, so running it repeatedly is safe. a only names the assistant,
// both sets are read from the locked row.
func (r *Reconciler) Reconcile(ctx context.Context, a domain.Assistant) (domain.Assistant, error) {
	var current domain.Assistant
	updated, err := r.storage.MutateAssistant(ctx, a.OwnerId, a.Id, func(locked *domain.Assistant, files FileResolver) error {
		desired, err := r.desired(ctx, files, locked.OwnerId, locked.FileIds)
		if err != nil {
			return err
		}
		if sameSet(desired, locked.DeclaredFileIds) {
			current = *locked
			return errInSync
		}
		if err := r.declare(ctx, locked.ExternalHandle, desired); err != nil {
			return err
		}
		locked.DeclaredFileIds = desired
		return nil
	})
	if errors.Is(err, errInSync) {
		return current, nil
	}
	if err != nil {
		return a, err
	}
	return updated, nil
}

// desired is the code execution subset of ids. Ids whose file no longer
// exists are left out.
func (r *Reconciler) desired(ctx context.Context, files FileResolver, owner domain.UserId, ids []domain.FileId) ([]domain.FileId, error) {
	records, _, err := files.FilesByIds(ctx, owner, ids)
	if err != nil {
		return nil, err
	}
	desired := Partition(records).CodeExecution
	if desired == nil {
		desired = []domain.FileId{}
	}
	return desired, nil
}

func (r *Reconciler) declare(ctx context.Context, handle string, ids []domain.FileId) error {
	return externalError("file declaration", r.client.DeclareCodeExecutionFiles(ctx, handle, ids))
}

func unionIds(existing, added []domain.FileId) []domain.FileId {
	out := make([]domain.FileId, 0, len(existing)+len(added))
	seen := make(map[domain.FileId]bool, len(existing)+len(added))
	for _, list := range [][]domain.FileId{existing, added} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func sameSet(a, b []domain.FileId) bool {
	as := make(map[domain.FileId]bool, len(a))
	for _, id := range a {
		as[id] = true
	}
	bs := make(map[domain.FileId]bool, len(b))
	for _, id := range b {
		if !as[id] {
			return false
		}
		bs[id] = true
	}
	return len(as) == len(bs)
}
