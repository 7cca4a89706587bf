package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"docshare/internal/access"
	"docshare/internal/document/model"
	"docshare/pkg/logger"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a row does not exist or is hidden from the
// caller by row-level security.
var ErrNotFound = errors.New("not found")

// Postgres error raised when a malformed uuid reaches a uuid column.
const invalidTextRepresentation pq.ErrorCode = "22P02"

// DocumentRepository reads and writes the Supabase tables. Every call runs in
// a transaction that has assumed the authenticated role with the caller's
// claims, so the database policies decide what the caller may see or change.
type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

func (r *DocumentRepository) asUser(ctx context.Context, userID string, fn func(tx *sql.Tx) error) error {
	claims, err := json.Marshal(map[string]string{"sub": userID, "role": "authenticated"})
	if err != nil {
		return err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`SELECT set_config('request.jwt.claims', $1, true), set_config('role', 'authenticated', true)`,
		string(claims)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("assume caller: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// translate maps driver errors that mean "no such row" onto ErrNotFound.
func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation {
		return ErrNotFound
	}
	return err
}

func (r *DocumentRepository) ListDocuments(ctx context.Context, userID string) ([]model.Document, error) {
	docs := []model.Document{}
	err := r.asUser(ctx, userID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, title, user_id, created_at FROM documents
			WHERE user_id = $1 OR id IN (SELECT document_id FROM document_members WHERE user_id = $1)
			ORDER BY created_at DESC`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var d model.Document
			if err := rows.Scan(&d.ID, &d.Title, &d.OwnerUserID, &d.CreatedAt); err != nil {
				return err
			}
			docs = append(docs, d)
		}
		return rows.Err()
	})
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents for user %s: %v", userID, err)
		return nil, err
	}
	return docs, nil
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, userID, title string) (*model.Document, error) {
	d := &model.Document{}
	err := r.asUser(ctx, userID, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO documents (title, user_id) VALUES ($1, $2) RETURNING id, title, user_id, created_at`,
			title, userID).Scan(&d.ID, &d.Title, &d.OwnerUserID, &d.CreatedAt)
	})
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		return nil, err
	}
	return d, nil
}

func (r *DocumentRepository) GetDocument(ctx context.Context, userID, docID string) (*model.Document, error) {
	d := &model.Document{}
	err := r.asUser(ctx, userID, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`SELECT id, title, user_id, created_at FROM documents WHERE id = $1`, docID).
			Scan(&d.ID, &d.Title, &d.OwnerUserID, &d.CreatedAt)
	})
	if err = translate(err); err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Sugar.Errorf("Failed to get doc %s: %v", docID, err)
		}
		return nil, err
	}
	return d, nil
}

// GetMemberRole returns the role stored on the caller's own membership row,
// or "" when there is none.
func (r *DocumentRepository) GetMemberRole(ctx context.Context, userID, docID string) (string, error) {
	var role string
	err := r.asUser(ctx, userID, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			"SELECT role FROM document_members WHERE document_id = $1 AND user_id = $2", docID, userID).Scan(&role)
	})
	if err = translate(err); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		logger.Sugar.Errorf("Failed to get member role: %v", err)
		return "", err
	}
	return role, nil
}

func (r *DocumentRepository) ListVersions(ctx context.Context, userID, docID string) ([]model.Version, error) {
	versions := []model.Version{}
	err := r.asUser(ctx, userID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, document_id, content, comment, created_at, created_by FROM versions
			WHERE document_id = $1
			ORDER BY created_at DESC`, docID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var v model.Version
			var createdBy sql.NullString
			if err := rows.Scan(&v.ID, &v.DocumentID, &v.Content, &v.Comment, &v.CreatedAt, &createdBy); err != nil {
				return err
			}
			if createdBy.Valid {
				v.CreatedBy = &createdBy.String
			}
			versions = append(versions, v)
		}
		return rows.Err()
	})
	if err != nil {
		logger.Sugar.Errorf("Failed to get versions for doc %s: %v", docID, err)
		return nil, err
	}
	return versions, nil
}

func (r *DocumentRepository) InsertVersion(ctx context.Context, userID string, nv model.NewVersion) (*model.Version, error) {
	v := &model.Version{
		DocumentID: nv.DocumentID,
		Content:    nv.Content,
		Comment:    nv.Comment,
		CreatedBy:  &nv.CreatedBy,
	}
	err := r.asUser(ctx, userID, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO versions (document_id, content, comment, created_by)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			nv.DocumentID, nv.Content, nv.Comment, nv.CreatedBy,
		).Scan(&v.ID, &v.CreatedAt)
	})
	if err != nil {
		logger.Sugar.Errorf("Failed to add version to doc %s: %v", nv.DocumentID, err)
		return nil, err
	}
	return v, nil
}

func (r *DocumentRepository) ListMembers(ctx context.Context, userID, docID string) ([]model.Member, error) {
	members := []model.Member{}
	err := r.asUser(ctx, userID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT document_id, user_id, role, email, created_at FROM member_with_email
			WHERE document_id = $1
			ORDER BY created_at ASC`, docID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m model.Member
			var role string
			if err := rows.Scan(&m.DocumentID, &m.UserID, &role, &m.Email, &m.CreatedAt); err != nil {
				return err
			}
			if m.Role, err = access.ParseMemberRole(role); err != nil {
				return err
			}
			members = append(members, m)
		}
		return rows.Err()
	})
	if err != nil {
		logger.Sugar.Errorf("Failed to get document members for doc %s: %v", docID, err)
		return nil, err
	}
	return members, nil
}

// InviteMember calls the invite_member procedure. Refusals come back inside
// the result, not as an error.
func (r *DocumentRepository) InviteMember(ctx context.Context, userID, docID, email, role string) (model.InviteResult, error) {
	var result model.InviteResult
	err := r.asUser(ctx, userID, func(tx *sql.Tx) error {
		var raw []byte
		if err := tx.QueryRowContext(ctx, "SELECT invite_member($1, $2, $3)", docID, email, role).Scan(&raw); err != nil {
			return err
		}
		return json.Unmarshal(raw, &result)
	})
	if err != nil {
		logger.Sugar.Errorf("Failed to invite %s to doc %s: %v", email, docID, err)
		return model.InviteResult{}, err
	}
	return result, nil
}

func (r *DocumentRepository) RemoveMember(ctx context.Context, userID, docID, memberID string) error {
	err := r.asUser(ctx, userID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM document_members WHERE document_id = $1 AND user_id = $2", docID, memberID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err = translate(err); err != nil && !errors.Is(err, ErrNotFound) {
		logger.Sugar.Errorf("Failed to remove member %s from doc %s: %v", memberID, docID, err)
	}
	return err
}

