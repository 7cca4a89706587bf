package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docshare/internal/access"
	"docshare/internal/document/history"
	"docshare/internal/document/model"
	"docshare/internal/document/repository"
	"docshare/pkg/logger"
	"docshare/pkg/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNoAccess       = errors.New("document does not exist or you have no access")
	ErrNotOwner       = errors.New("only the document owner can manage members")
	ErrReadOnly       = errors.New("read-only access: only owners and editors can save")
	ErrEmptyContent   = errors.New("content cannot be empty")
	ErrEmptyEmail     = errors.New("email cannot be empty")
	ErrEmptyTitle     = errors.New("title cannot be empty")
	ErrMemberNotFound = errors.New("member not found")
)

// Store is the backend the service talks to. All calls run as userID.
type Store interface {
	ListDocuments(ctx context.Context, userID string) ([]model.Document, error)
	CreateDocument(ctx context.Context, userID, title string) (*model.Document, error)
	GetDocument(ctx context.Context, userID, docID string) (*model.Document, error)
	GetMemberRole(ctx context.Context, userID, docID string) (string, error)
	ListVersions(ctx context.Context, userID, docID string) ([]model.Version, error)
	InsertVersion(ctx context.Context, userID string, nv model.NewVersion) (*model.Version, error)
	ListMembers(ctx context.Context, userID, docID string) ([]model.Member, error)
	InviteMember(ctx context.Context, userID, docID, email, role string) (model.InviteResult, error)
	RemoveMember(ctx context.Context, userID, docID, memberID string) error
}

// Notifier is told about changes so open pages can refetch. It may be nil.
type Notifier interface {
	VersionSaved(docID, versionID string)
	MembersChanged(docID string)
}

type DocumentService struct {
	Store    Store
	Notifier Notifier
}

func NewDocumentService(store Store, notifier Notifier) *DocumentService {
	return &DocumentService{Store: store, Notifier: notifier}
}

// Editor is everything the editor page needs for one load.
type Editor struct {
	View     model.DocumentView
	Versions []history.Entry
}

func (s *DocumentService) ListDocuments(ctx context.Context, userID string) ([]model.Document, error) {
	return s.Store.ListDocuments(ctx, userID)
}

func (s *DocumentService) CreateDocument(ctx context.Context, userID, title string) (*model.Document, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	doc, err := s.Store.CreateDocument(ctx, userID, title)
	if err != nil {
		return nil, err
	}
	metrics.DocumentsCreated.Inc()
	logger.Sugar.Infof("User %s created document %s", userID, doc.ID)
	return doc, nil
}

// ResolveRole derives the caller's role on a document from the backend.
// A document the caller cannot see resolves to RoleNone with a nil document.
// Nothing is cached; every call asks the backend again.
func (s *DocumentService) ResolveRole(ctx context.Context, userID, docID string) (model.DocumentView, error) {
	if uuid.Validate(docID) != nil {
		return model.DocumentView{Role: access.RoleNone}, nil
	}

	doc, err := s.Store.GetDocument(ctx, userID, docID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.DocumentView{Role: access.RoleNone}, nil
	}
	if err != nil {
		return model.DocumentView{}, err
	}

	var memberRole string
	if doc.OwnerUserID != userID {
		if memberRole, err = s.Store.GetMemberRole(ctx, userID, docID); err != nil {
			return model.DocumentView{}, err
		}
	}

	role, err := access.Resolve(doc.OwnerUserID, userID, memberRole)
	if err != nil {
		return model.DocumentView{}, fmt.Errorf("document %s: %w", docID, err)
	}
	return model.DocumentView{Document: doc, Role: role}, nil
}

// DocumentView resolves the caller's role and fails with ErrNoAccess unless
// the caller may at least view the document.
func (s *DocumentService) DocumentView(ctx context.Context, userID, docID string) (model.DocumentView, error) {
	view, err := s.ResolveRole(ctx, userID, docID)
	if err != nil {
		return model.DocumentView{}, err
	}
	if !view.Role.CanView() {
		return model.DocumentView{}, ErrNoAccess
	}
	return view, nil
}

// Editor loads the document, the caller's role and the attributed history.
func (s *DocumentService) Editor(ctx context.Context, userID, docID string) (*Editor, error) {
	view, err := s.DocumentView(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	entries, err := s.history(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	return &Editor{View: view, Versions: entries}, nil
}

func (s *DocumentService) History(ctx context.Context, userID, docID string) ([]history.Entry, error) {
	if _, err := s.DocumentView(ctx, userID, docID); err != nil {
		return nil, err
	}
	return s.history(ctx, userID, docID)
}

// history fetches versions and members side by side. Only the version fetch
// can fail the load; without members every author falls back to its id.
func (s *DocumentService) history(ctx context.Context, userID, docID string) ([]history.Entry, error) {
	var (
		versions []model.Version
		members  []model.Member
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		versions, err = s.Store.ListVersions(gctx, userID, docID)
		return err
	})
	g.Go(func() error {
		m, err := s.Store.ListMembers(gctx, userID, docID)
		if err != nil {
			logger.Sugar.Warnf("Author lookup for doc %s failed, falling back to ids: %v", docID, err)
			return nil
		}
		members = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return history.Attribute(versions, members), nil
}

// FindVersion picks one entry out of a loaded history.
func FindVersion(entries []history.Entry, versionID string) (*history.Entry, error) {
	for i := range entries {
		if entries[i].ID == versionID {
			return &entries[i], nil
		}
	}
	return nil, ErrNotFound
}

// SaveVersion appends a version. Whitespace-only content is rejected before
// any backend call; the role is re-resolved at the moment of the save.
func (s *DocumentService) SaveVersion(ctx context.Context, userID, docID, content, comment string) (*model.Version, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	view, err := s.DocumentView(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if !view.Role.CanEdit() {
		return nil, ErrReadOnly
	}

	v, err := s.Store.InsertVersion(ctx, userID, model.NewVersion{
		DocumentID: docID,
		Content:    content,
		Comment:    strings.TrimSpace(comment),
		CreatedBy:  userID,
	})
	if err != nil {
		return nil, err
	}

	metrics.VersionsSaved.Inc()
	if s.Notifier != nil {
		s.Notifier.VersionSaved(docID, v.ID)
	}
	return v, nil
}

// ownerView is the gate for every member-management operation.
func (s *DocumentService) ownerView(ctx context.Context, userID, docID string) (model.DocumentView, error) {
	view, err := s.DocumentView(ctx, userID, docID)
	if err != nil {
		return model.DocumentView{}, err
	}
	if !view.Role.CanManageMembers() {
		return model.DocumentView{}, ErrNotOwner
	}
	return view, nil
}

// Members lists the membership rows of a document the caller owns.
func (s *DocumentService) Members(ctx context.Context, userID, docID string) (model.DocumentView, []model.Member, error) {
	view, err := s.ownerView(ctx, userID, docID)
	if err != nil {
		return model.DocumentView{}, nil, err
	}
	members, err := s.Store.ListMembers(ctx, userID, docID)
	if err != nil {
		return model.DocumentView{}, nil, err
	}
	return view, members, nil
}

// Invite adds a member or changes an existing member's role. Refusals by the
// invite procedure come back as an unsuccessful result, not as an error.
// A role outside the member set is refused locally with invalid_role, and a
// malformed document id is ErrNoAccess like any document the caller cannot see.
func (s *DocumentService) Invite(ctx context.Context, userID, docID, email, role string) (model.InviteResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return model.InviteResult{}, ErrEmptyEmail
	}
	if _, err := access.ParseMemberRole(role); err != nil {
		metrics.Invites.WithLabelValues(string(model.InviteInvalidRole)).Inc()
		return model.InviteResult{Error: model.InviteInvalidRole}, nil
	}
	if uuid.Validate(docID) != nil {
		return model.InviteResult{}, ErrNoAccess
	}

	result, err := s.Store.InviteMember(ctx, userID, docID, email, role)
	if err != nil {
		return model.InviteResult{}, err
	}

	if !result.OK() {
		metrics.Invites.WithLabelValues(string(result.Error)).Inc()
		logger.Sugar.Infof("Invite of %s to doc %s refused: %s", email, docID, result.Error)
		return result, nil
	}

	metrics.Invites.WithLabelValues("success").Inc()
	if s.Notifier != nil {
		s.Notifier.MembersChanged(docID)
	}
	return result, nil
}

// ChangeRole re-invites an existing member under a new role. The member's
// email is taken from the current member list.
func (s *DocumentService) ChangeRole(ctx context.Context, userID, docID, memberID, role string) (model.InviteResult, error) {
	_, members, err := s.Members(ctx, userID, docID)
	if err != nil {
		return model.InviteResult{}, err
	}

	var email string
	for _, m := range members {
		if m.UserID == memberID {
			email = m.Email
			break
		}
	}
	if email == "" {
		return model.InviteResult{}, ErrMemberNotFound
	}

	return s.Invite(ctx, userID, docID, email, role)
}

func (s *DocumentService) RemoveMember(ctx context.Context, userID, docID, memberID string) error {
	if _, err := s.ownerView(ctx, userID, docID); err != nil {
		return err
	}
	if uuid.Validate(memberID) != nil {
		return ErrMemberNotFound
	}

	err := s.Store.RemoveMember(ctx, userID, docID, memberID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrMemberNotFound
	}
	if err != nil {
		return err
	}

	metrics.MembersRemoved.Inc()
	logger.Sugar.Infof("User %s removed member %s from doc %s", userID, memberID, docID)
	if s.Notifier != nil {
		s.Notifier.MembersChanged(docID)
	}
	return nil
}
