package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"docshare/internal/access"
	"docshare/internal/document/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerID = "11111111-1111-1111-1111-111111111111"
	docID   = "22222222-2222-2222-2222-222222222222"
)

func newRepo(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDocumentRepository(db), mock
}

// expectAsUser registers the transaction prologue every call runs.
func expectAsUser(mock sqlmock.Sqlmock, userID string) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('request.jwt.claims', $1, true)")).
		WithArgs(`{"role":"authenticated","sub":"` + userID + `"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestGetDocument(t *testing.T) {
	repo, mock := newRepo(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	expectAsUser(mock, ownerID)
	mock.ExpectQuery("SELECT id, title, user_id, created_at FROM documents WHERE id = \\$1").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "user_id", "created_at"}).
			AddRow(docID, "Notes", ownerID, created))
	mock.ExpectCommit()

	doc, err := repo.GetDocument(context.Background(), ownerID, docID)
	require.NoError(t, err)
	assert.Equal(t, &model.Document{ID: docID, Title: "Notes", OwnerUserID: ownerID, CreatedAt: created}, doc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocument_NotFound(t *testing.T) {
	repo, mock := newRepo(t)

	expectAsUser(mock, ownerID)
	mock.ExpectQuery("SELECT id, title, user_id, created_at FROM documents").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "user_id", "created_at"}))
	mock.ExpectRollback()

	_, err := repo.GetDocument(context.Background(), ownerID, docID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocument_MalformedID(t *testing.T) {
	repo, mock := newRepo(t)

	expectAsUser(mock, ownerID)
	mock.ExpectQuery("SELECT id, title, user_id, created_at FROM documents").
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"})
	mock.ExpectRollback()

	_, err := repo.GetDocument(context.Background(), ownerID, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssumeCallerFailure(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").WillReturnError(errors.New("permission denied to set role"))
	mock.ExpectRollback()

	_, err := repo.ListDocuments(context.Background(), ownerID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assume caller")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDocuments(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	expectAsUser(mock, ownerID)
	mock.ExpectQuery("SELECT id, title, user_id, created_at FROM documents").
		WithArgs(ownerID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "user_id", "created_at"}).
			AddRow(docID, "Mine", ownerID, now).
			AddRow("33333333-3333-3333-3333-333333333333", "Shared", "44444444-4444-4444-4444-444444444444", now.Add(-time.Hour)))
	mock.ExpectCommit()

	docs, err := repo.ListDocuments(context.Background(), ownerID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Mine", docs[0].Title)
	assert.Equal(t, "Shared", docs[1].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDocument(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	expectAsUser(mock, ownerID)
	mock.ExpectQuery("INSERT INTO documents").
		WithArgs("Plan", ownerID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "user_id", "created_at"}).
			AddRow(docID, "Plan", ownerID, now))
	mock.ExpectCommit()

	doc, err := repo.CreateDocument(context.Background(), ownerID, "Plan")
	require.NoError(t, err)
	assert.Equal(t, docID, doc.ID)
	assert.Equal(t, ownerID, doc.OwnerUserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMemberRole(t *testing.T) {
	repo, mock := newRepo(t)
	const memberID = "55555555-5555-5555-5555-555555555555"

	expectAsUser(mock, memberID)
	mock.ExpectQuery("SELECT role FROM document_members").
		WithArgs(docID, memberID).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("viewer"))
	mock.ExpectCommit()

	role, err := repo.GetMemberRole(context.Background(), memberID, docID)
	require.NoError(t, err)
	assert.Equal(t, "viewer", role)

	expectAsUser(mock, memberID)
	mock.ExpectQuery("SELECT role FROM document_members").
		WithArgs(docID, memberID).
		WillReturnRows(sqlmock.NewRows([]string{"role"}))
	mock.ExpectRollback()

	role, err = repo.GetMemberRole(context.Background(), memberID, docID)
	require.NoError(t, err)
	assert.Empty(t, role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListVersions(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	expectAsUser(mock, ownerID)
	mock.ExpectQuery("SELECT id, document_id, content, comment, created_at, created_by FROM versions").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "content", "comment", "created_at", "created_by"}).
			AddRow("v2", docID, "second", "", now, ownerID).
			AddRow("v1", docID, "first", "init", now.Add(-time.Minute), nil))
	mock.ExpectCommit()

	versions, err := repo.ListVersions(context.Background(), ownerID, docID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.NotNil(t, versions[0].CreatedBy)
	assert.Equal(t, ownerID, *versions[0].CreatedBy)
	assert.Nil(t, versions[1].CreatedBy)
	assert.Equal(t, "init", versions[1].Comment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVersion(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	expectAsUser(mock, ownerID)
	mock.ExpectQuery("INSERT INTO versions").
		WithArgs(docID, "body", "note", ownerID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("v1", now))
	mock.ExpectCommit()

	v, err := repo.InsertVersion(context.Background(), ownerID, model.NewVersion{
		DocumentID: docID, Content: "body", Comment: "note", CreatedBy: ownerID,
	})
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
	assert.True(t, now.Equal(v.CreatedAt))
	assert.Equal(t, ownerID, *v.CreatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVersion_RejectedByPolicy(t *testing.T) {
	repo, mock := newRepo(t)

	expectAsUser(mock, ownerID)
	mock.ExpectQuery("INSERT INTO versions").
		WillReturnError(&pq.Error{Code: "42501", Message: `new row violates row-level security policy for table "versions"`})
	mock.ExpectRollback()

	_, err := repo.InsertVersion(context.Background(), ownerID, model.NewVersion{DocumentID: docID, Content: "x", CreatedBy: ownerID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row-level security")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMembers(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	expectAsUser(mock, ownerID)
	mock.ExpectQuery("SELECT document_id, user_id, role, email, created_at FROM member_with_email").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "user_id", "role", "email", "created_at"}).
			AddRow(docID, "m1", "editor", "ed@example.com", now).
			AddRow(docID, "m2", "viewer", "vi@example.com", now))
	mock.ExpectCommit()

	members, err := repo.ListMembers(context.Background(), ownerID, docID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, access.RoleEditor, members[0].Role)
	assert.Equal(t, access.RoleViewer, members[1].Role)
	assert.Equal(t, "vi@example.com", members[1].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMembers_UnknownRole(t *testing.T) {
	repo, mock := newRepo(t)

	expectAsUser(mock, ownerID)
	mock.ExpectQuery("FROM member_with_email").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "user_id", "role", "email", "created_at"}).
			AddRow(docID, "m1", "admin", "a@example.com", time.Now()))
	mock.ExpectRollback()

	_, err := repo.ListMembers(context.Background(), ownerID, docID)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteMember(t *testing.T) {
	repo, mock := newRepo(t)

	expectAsUser(mock, ownerID)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT invite_member($1, $2, $3)")).
		WithArgs(docID, "ed@example.com", "editor").
		WillReturnRows(sqlmock.NewRows([]string{"invite_member"}).AddRow([]byte(`{"success": true}`)))
	mock.ExpectCommit()

	res, err := repo.InviteMember(context.Background(), ownerID, docID, "ed@example.com", "editor")
	require.NoError(t, err)
	assert.True(t, res.OK())

	expectAsUser(mock, ownerID)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT invite_member($1, $2, $3)")).
		WithArgs(docID, "ghost@example.com", "viewer").
		WillReturnRows(sqlmock.NewRows([]string{"invite_member"}).AddRow([]byte(`{"error": "user_not_found"}`)))
	mock.ExpectCommit()

	res, err = repo.InviteMember(context.Background(), ownerID, docID, "ghost@example.com", "viewer")
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, model.InviteUserNotFound, res.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMember(t *testing.T) {
	repo, mock := newRepo(t)

	expectAsUser(mock, ownerID)
	mock.ExpectExec("DELETE FROM document_members").
		WithArgs(docID, "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.RemoveMember(context.Background(), ownerID, docID, "m1"))

	expectAsUser(mock, ownerID)
	mock.ExpectExec("DELETE FROM document_members").
		WithArgs(docID, "m1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	assert.ErrorIs(t, repo.RemoveMember(context.Background(), ownerID, docID, "m1"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
