// Package session enforces single-active-operator-per-checkpoint for
// guard client devices.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campus-access-backend/internal/model"
)

// ErrSessionNotFound is returned for heartbeat/finalize on a token with
// no active session.
var ErrSessionNotFound = errors.New("active session not found")

// TokenAll asks ForceFinalize to close every active session.
const TokenAll = "all"

// DefaultStaleAfter flags sessions without a heartbeat for this long.
const DefaultStaleAfter = 10 * time.Minute

// CheckpointBusyError reports that another guard holds the checkpoint.
type CheckpointBusyError struct {
	Checkpoint   string    `json:"checkpoint"`
	GuardID      string    `json:"guard_id"`
	GuardName    string    `json:"guard_name"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
}

func (e *CheckpointBusyError) Error() string {
	return fmt.Sprintf("checkpoint %s is held by guard %s (%s)",
		e.Checkpoint, e.GuardName, e.GuardID)
}

// DeviceInfo describes the guard's client device.
type DeviceInfo struct {
	Platform   string `json:"platform"`
	DeviceID   string `json:"device_id"`
	AppVersion string `json:"app_version"`
}

// View is an active session annotated with the read-time staleness
// verdict. Staleness never closes a session by itself.
type View struct {
	model.GuardSession
	Stale bool `json:"stale"`
}

// Manager tracks which guard holds which checkpoint.
type Manager struct {
	db         *gorm.DB
	staleAfter time.Duration
}

// NewManager creates a Manager. staleAfter <= 0 selects
// DefaultStaleAfter.
func NewManager(db *gorm.DB, staleAfter time.Duration) *Manager {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Manager{db: db, staleAfter: staleAfter}
}

// Start opens a session for the guard at the checkpoint. Any of the
// guard's own active sessions are closed first, whatever checkpoint
// they held. If another guard holds this checkpoint the call fails with
// *CheckpointBusyError naming the holder.
//
// The commit is guarded by the partial unique index over
// (checkpoint) WHERE active, so two racing starts for the same
// checkpoint cannot both succeed; the loser's insert fails and is
// reported as busy.
func (m *Manager) Start(ctx context.Context, guardID, guardName, checkpoint string, device DeviceInfo) (*model.GuardSession, error) {
	now := time.Now().UTC()
	sess := &model.GuardSession{
		Token:          uuid.NewString(),
		GuardID:        guardID,
		GuardName:      guardName,
		Checkpoint:     checkpoint,
		DevicePlatform: device.Platform,
		DeviceID:       device.DeviceID,
		AppVersion:     device.AppVersion,
		Active:         true,
		LastActivity:   now,
		StartedAt:      now,
	}

	var insertErr error
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if holder, err := m.activeHolder(tx, checkpoint, guardID); err != nil {
			return err
		} else if holder != nil {
			return busyError(holder)
		}

		if err := tx.Model(&model.GuardSession{}).
			Where("guard_id = ? AND active = ?", guardID, true).
			Updates(map[string]any{"active": false, "ended_at": now}).Error; err != nil {
			return fmt.Errorf("failed to close previous sessions: %w", err)
		}

		if err := tx.Create(sess).Error; err != nil {
			insertErr = err
			return fmt.Errorf("failed to create session: %w", err)
		}
		return nil
	})
	if err != nil {
		var busy *CheckpointBusyError
		if errors.As(err, &busy) {
			return nil, err
		}
		if insertErr != nil {
			return nil, m.insertConflict(ctx, checkpoint, guardID, err)
		}
		return nil, err
	}
	return sess, nil
}

// insertConflict maps a failed session insert back to the busy verdict
// when another guard won the checkpoint between the check and the
// insert. The holder re-query runs on a fresh connection: the failed
// insert has already aborted its transaction.
func (m *Manager) insertConflict(ctx context.Context, checkpoint, guardID string, insertErr error) error {
	if holder, err := m.activeHolder(m.db.WithContext(ctx), checkpoint, guardID); err == nil && holder != nil {
		return busyError(holder)
	}
	return insertErr
}

// Heartbeat refreshes the session's last-activity timestamp.
func (m *Manager) Heartbeat(ctx context.Context, token string) (*model.GuardSession, error) {
	now := time.Now().UTC()
	res := m.db.WithContext(ctx).Model(&model.GuardSession{}).
		Where("token = ? AND active = ?", token, true).
		Update("last_activity", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionNotFound
	}
	return m.byToken(ctx, token)
}

// Finalize closes the session owned by the token.
func (m *Manager) Finalize(ctx context.Context, token string) (*model.GuardSession, error) {
	now := time.Now().UTC()
	res := m.db.WithContext(ctx).Model(&model.GuardSession{}).
		Where("token = ? AND active = ?", token, true).
		Updates(map[string]any{"active": false, "ended_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionNotFound
	}
	return m.byToken(ctx, token)
}

// ForceFinalize closes one active session, or all of them when token is
// TokenAll, recording the admin who forced it. It bypasses ownership.
func (m *Manager) ForceFinalize(ctx context.Context, token, adminID string) (int64, error) {
	if adminID == "" {
		adminID = "unknown"
	}
	q := m.db.WithContext(ctx).Model(&model.GuardSession{}).Where("active = ?", true)
	if token != TokenAll {
		q = q.Where("token = ?", token)
	}

	res := q.Updates(map[string]any{
		"active":    false,
		"ended_at":  time.Now().UTC(),
		"forced_by": adminID,
	})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 && token != TokenAll {
		return 0, ErrSessionNotFound
	}
	return res.RowsAffected, nil
}

// ListActive returns all active sessions, each flagged stale when its
// last heartbeat is older than the configured threshold.
func (m *Manager) ListActive(ctx context.Context) ([]View, error) {
	var sessions []model.GuardSession
	err := m.db.WithContext(ctx).
		Where("active = ?", true).
		Order("started_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	views := make([]View, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, View{
			GuardSession: s,
			Stale:        now.Sub(s.LastActivity) > m.staleAfter,
		})
	}
	return views, nil
}

func (m *Manager) byToken(ctx context.Context, token string) (*model.GuardSession, error) {
	var sess model.GuardSession
	if err := m.db.WithContext(ctx).First(&sess, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

func (m *Manager) activeHolder(tx *gorm.DB, checkpoint, excludeGuardID string) (*model.GuardSession, error) {
	var holder model.GuardSession
	err := tx.
		Where("checkpoint = ? AND active = ? AND guard_id <> ?", checkpoint, true, excludeGuardID).
		First(&holder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &holder, nil
}

func busyError(holder *model.GuardSession) *CheckpointBusyError {
	return &CheckpointBusyError{
		Checkpoint:   holder.Checkpoint,
		GuardID:      holder.GuardID,
		GuardName:    holder.GuardName,
		StartedAt:    holder.StartedAt,
		LastActivity: holder.LastActivity,
	}
}
