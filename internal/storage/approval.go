package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Approval is a destructive action waiting for a human decision.
type Approval struct {
	ID          string    `json:"id"`
	Tool        string    `json:"tool"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Metadata    string    `json:"metadata"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ApprovalStore keeps approvals in SQLite so a separate process can
// resolve them.
type ApprovalStore struct {
	db *DB
}

func NewApprovalStore(db *DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

func (s *ApprovalStore) Create(a *Approval) error {
	if a.Status == "" {
		a.Status = ApprovalPending
	}
	if a.Metadata == "" {
		a.Metadata = "{}"
	}
	a.CreatedAt = time.Now().UTC()
	_, err := s.db.conn.Exec(
		`INSERT INTO mcp_approvals (id, tool, description, status, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Tool, a.Description, a.Status, a.Metadata, a.CreatedAt,
	)
	return err
}

func (s *ApprovalStore) Status(id string) (string, error) {
	var status string
	err := s.db.conn.QueryRow(`SELECT status FROM mcp_approvals WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("approval %s: %w", id, ErrNotFound)
	}
	return status, err
}

func (s *ApprovalStore) ListPending() ([]Approval, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, tool, description, status, metadata, created_at FROM mcp_approvals
		 WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Approval
	for rows.Next() {
		var a Approval
		if err := rows.Scan(&a.ID, &a.Tool, &a.Description, &a.Status, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Resolve approves or rejects a pending action.
func (s *ApprovalStore) Resolve(id string, approved bool) error {
	status := ApprovalRejected
	if approved {
		status = ApprovalApproved
	}
	res, err := s.db.conn.Exec(`UPDATE mcp_approvals SET status = ? WHERE id = ? AND status = 'pending'`, status, id)
	if err != nil {
		return err
	}
	return expectOne(res, "pending approval", id)
}

func (s *ApprovalStore) Delete(id string) error {
	_, err := s.db.conn.Exec(`DELETE FROM mcp_approvals WHERE id = ?`, id)
	return err
}
