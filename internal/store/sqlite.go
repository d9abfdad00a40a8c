package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Shivamkadam692/WorkConnect/internal/ids"
	"github.com/Shivamkadam692/WorkConnect/internal/models"
)

const sqliteRequestColumns = `id, client_id, worker_id, worker_profile_id, status, price, message,
	preferred_date_time, client_lat, client_lng, client_location_at,
	worker_lat, worker_lng, worker_location_at, tracking_active_client, tracking_active_worker,
	created_at, updated_at, accepted_at, rejected_at, loaded_at, completed_at`

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/workconnect.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/workconnect.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection keeps conditional updates serialized.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS worker_profiles (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'available',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		worker_id TEXT NOT NULL,
		worker_profile_id TEXT NOT NULL REFERENCES worker_profiles(id),
		status TEXT NOT NULL DEFAULT 'pending',
		price TEXT NOT NULL DEFAULT '0',
		message TEXT NOT NULL DEFAULT '',
		preferred_date_time DATETIME,
		client_lat REAL,
		client_lng REAL,
		client_location_at DATETIME,
		worker_lat REAL,
		worker_lng REAL,
		worker_location_at DATETIME,
		tracking_active_client BOOLEAN NOT NULL DEFAULT 0,
		tracking_active_worker BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		accepted_at DATETIME,
		rejected_at DATETIME,
		loaded_at DATETIME,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS request_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		sender_id TEXT,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		related_request TEXT REFERENCES requests(id) ON DELETE SET NULL,
		is_read BOOLEAN NOT NULL DEFAULT 0,
		priority TEXT NOT NULL DEFAULT 'medium',
		created_at DATETIME NOT NULL,
		expires_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_requests_client ON requests(client_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_requests_worker ON requests(worker_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_request_messages_request ON request_messages(request_id, seq);
	CREATE INDEX IF NOT EXISTS idx_notifications_feed ON notifications(recipient_id, is_read, created_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_expiry ON notifications(expires_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// utc normalizes times so that text comparisons in SQLite order correctly.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// CreateWorkerProfile creates a new worker profile in the available state.
func (s *SQLiteStore) CreateWorkerProfile(ctx context.Context, workerID uuid.UUID, name string) (*models.WorkerProfile, error) {
	id := ids.NewUUIDv7()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_profiles (id, worker_id, name, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, workerID, name, models.WorkerAvailable, utc(time.Now()))
	if err != nil {
		return nil, err
	}
	return s.GetWorkerProfile(ctx, id)
}

// GetWorkerProfile retrieves a worker profile by ID.
func (s *SQLiteStore) GetWorkerProfile(ctx context.Context, id uuid.UUID) (*models.WorkerProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, worker_id, name, status, created_at
		FROM worker_profiles WHERE id = ?
	`, id)
	p, err := scanWorkerProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: worker profile %s", models.ErrNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

// GetWorkerStatus returns the availability of a worker profile.
func (s *SQLiteStore) GetWorkerStatus(ctx context.Context, id uuid.UUID) (models.WorkerStatus, error) {
	p, err := s.GetWorkerProfile(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Status, nil
}

// SetWorkerStatus updates the availability of a worker profile.
func (s *SQLiteStore) SetWorkerStatus(ctx context.Context, id uuid.UUID, status models.WorkerStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE worker_profiles SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: worker profile %s", models.ErrNotFound, id)
	}
	return nil
}

// CreateRequest inserts a new request row.
func (s *SQLiteStore) CreateRequest(ctx context.Context, req *models.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (id, client_id, worker_id, worker_profile_id, status, price, message,
			preferred_date_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.ClientID, req.WorkerID, req.WorkerProfileID, req.Status,
		req.Price.String(), req.Message, utcPtr(req.PreferredDateTime), utc(req.CreatedAt), utc(req.CreatedAt))
	return err
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetRequest retrieves a request by ID.
func (s *SQLiteStore) GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	return getRequest(ctx, s.db, id)
}

func getRequest(ctx context.Context, q queryRower, id uuid.UUID) (*models.Request, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sqliteRequestColumns+` FROM requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: request %s", models.ErrNotFound, id)
		}
		return nil, err
	}
	return req, nil
}

// ListRequests retrieves requests matching the filter, newest first.
func (s *SQLiteStore) ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	var (
		where []string
		args  []any
	)
	if filter.ClientID != nil {
		where = append(where, "client_id = ?")
		args = append(args, *filter.ClientID)
	}
	if filter.WorkerID != nil {
		where = append(where, "worker_id = ?")
		args = append(args, *filter.WorkerID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	query := `SELECT ` + sqliteRequestColumns + ` FROM requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// inTx runs fn in a transaction. With a single pooled connection, no other
// statement can run between the ones fn issues.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// transition applies a conditional update and returns the updated row. A
// request that exists but fails the condition yields models.ErrInvalidState.
func (s *SQLiteStore) transition(ctx context.Context, id uuid.UUID, set, cond string, args ...any) (*models.Request, error) {
	var req *models.Request
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		req, err = transitionTx(ctx, tx, id, set, cond, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func transitionTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, set, cond string, args ...any) (*models.Request, error) {
	query := `UPDATE requests SET ` + set + ` WHERE id = ? AND ` + cond
	res, err := tx.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	current, err := getRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: request is %s", models.ErrInvalidState, current.Status)
	}
	return current, nil
}

// AcceptRequest moves a pending request to accepted.
func (s *SQLiteStore) AcceptRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error) {
	return s.transition(ctx, id,
		`status = 'accepted', accepted_at = ?, updated_at = ?`,
		`status = 'pending'`, utc(at), utc(at))
}

// RejectRequest moves a pending request to rejected.
func (s *SQLiteStore) RejectRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error) {
	return s.transition(ctx, id,
		`status = 'rejected', rejected_at = ?, updated_at = ?`,
		`status = 'pending'`, utc(at), utc(at))
}

// StartRequest sets loaded_at on an accepted request that has not started.
func (s *SQLiteStore) StartRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error) {
	return s.transition(ctx, id,
		`loaded_at = ?, updated_at = ?`,
		`status = 'accepted' AND loaded_at IS NULL`, utc(at), utc(at))
}

// CompleteRequest moves an accepted request to completed and stops tracking.
func (s *SQLiteStore) CompleteRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error) {
	return s.transition(ctx, id,
		`status = 'completed', completed_at = ?, updated_at = ?,
		 tracking_active_client = 0, tracking_active_worker = 0`,
		`status = 'accepted'`, utc(at), utc(at))
}

// UpdateLocation overwrites the role's location snapshot and marks its
// tracking active, reporting whether this write switched tracking on.
func (s *SQLiteStore) UpdateLocation(ctx context.Context, id uuid.UUID, role models.Role, coord models.Coordinate) (*models.Request, bool, error) {
	lat, lng, at, flag := locationColumns(role)
	set := fmt.Sprintf(`%s = ?, %s = ?, %s = ?, %s = 1, updated_at = ?`, lat, lng, at, flag)

	var (
		req     *models.Request
		started bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		prev, err := getRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		req, err = transitionTx(ctx, tx, id, set, `status = 'accepted'`,
			coord.Lat, coord.Lng, utc(coord.UpdatedAt), utc(coord.UpdatedAt))
		if err != nil {
			return err
		}
		started = !prev.TrackingActive(role)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return req, started, nil
}

// StopTracking clears the role's tracking flag.
func (s *SQLiteStore) StopTracking(ctx context.Context, id uuid.UUID, role models.Role) (*models.Request, error) {
	_, _, _, flag := locationColumns(role)
	return s.transition(ctx, id, flag+` = 0`, `status = 'accepted'`)
}

// AppendMessage appends a message to a request's thread while the request
// still accepts messages.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO request_messages (id, request_id, sender_id, text, created_at)
		SELECT ?, ?, ?, ?, ?
		WHERE EXISTS (
			SELECT 1 FROM requests WHERE id = ? AND status IN ('pending', 'accepted')
		)
	`, msg.ID, msg.RequestID, msg.SenderID, msg.Text, utc(msg.CreatedAt), msg.RequestID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := s.GetRequest(ctx, msg.RequestID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: messaging closed for a %s request", models.ErrInvalidState, current.Status)
	}
	return nil
}

// ListMessages retrieves a request's thread in append order.
func (s *SQLiteStore) ListMessages(ctx context.Context, requestID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, sender_id, text, created_at
		FROM request_messages
		WHERE request_id = ?
		ORDER BY seq ASC
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CreateNotification inserts a notification.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, sender_id, type, title, message,
			related_request, is_read, priority, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.RecipientID, n.SenderID, n.Type, n.Title, n.Message,
		n.RelatedRequest, n.IsRead, n.Priority, utc(n.CreatedAt), utcPtr(n.ExpiresAt))
	return err
}

// ListNotifications retrieves a recipient's unexpired notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, recipient uuid.UUID, limit, offset int, now time.Time) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, recipient, utc(now), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// CountUnreadNotifications counts a recipient's unread, unexpired notifications.
func (s *SQLiteStore) CountUnreadNotifications(ctx context.Context, recipient uuid.UUID, now time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = ? AND is_read = 0 AND (expires_at IS NULL OR expires_at > ?)
	`, recipient, utc(now)).Scan(&count)
	return count, err
}

// MarkNotificationRead marks one of the recipient's unexpired notifications as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id, recipient uuid.UUID, now time.Time) (*models.Notification, error) {
	var n *models.Notification
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE notifications SET is_read = 1
			WHERE id = ? AND recipient_id = ? AND (expires_at IS NULL OR expires_at > ?)
		`, id, recipient, utc(now))
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: notification %s", models.ErrNotFound, id)
		}

		row := tx.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
		n, err = scanNotification(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// MarkAllNotificationsRead marks every unread notification of the recipient as read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, recipient uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0
	`, recipient)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteNotification deletes one of the recipient's unexpired notifications.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, id, recipient uuid.UUID, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE id = ? AND recipient_id = ? AND (expires_at IS NULL OR expires_at > ?)
	`, id, recipient, utc(now))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: notification %s", models.ErrNotFound, id)
	}
	return nil
}

// DeleteReadNotifications deletes every read notification of the recipient.
func (s *SQLiteStore) DeleteReadNotifications(ctx context.Context, recipient uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE recipient_id = ? AND is_read = 1`, recipient)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredNotifications deletes notifications whose expiry has passed.
func (s *SQLiteStore) DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, utc(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteReadNotificationsBefore deletes read notifications created before cutoff.
func (s *SQLiteStore) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE is_read = 1 AND created_at < ?
	`, utc(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
