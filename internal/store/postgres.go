package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivamkadam692/WorkConnect/internal/ids"
	"github.com/Shivamkadam692/WorkConnect/internal/metrics"
	"github.com/Shivamkadam692/WorkConnect/internal/models"
)

const requestColumns = `id, client_id, worker_id, worker_profile_id, status, price::text, message,
	preferred_date_time, client_lat, client_lng, client_location_at,
	worker_lat, worker_lng, worker_location_at, tracking_active_client, tracking_active_worker,
	created_at, updated_at, accepted_at, rejected_at, loaded_at, completed_at`

const notificationColumns = `id, recipient_id, sender_id, type, title, message,
	related_request, is_read, priority, created_at, expires_at`

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observePostgres(start time.Time) {
	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
}

// CreateWorkerProfile creates a new worker profile in the available state.
func (s *PostgresStore) CreateWorkerProfile(ctx context.Context, workerID uuid.UUID, name string) (*models.WorkerProfile, error) {
	defer observePostgres(time.Now())

	row := s.pool.QueryRow(ctx, `
		INSERT INTO worker_profiles (id, worker_id, name, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, worker_id, name, status, created_at
	`, ids.NewUUIDv7(), workerID, name, models.WorkerAvailable, time.Now().UTC())
	return scanWorkerProfile(row)
}

// GetWorkerProfile retrieves a worker profile by ID.
func (s *PostgresStore) GetWorkerProfile(ctx context.Context, id uuid.UUID) (*models.WorkerProfile, error) {
	defer observePostgres(time.Now())

	row := s.pool.QueryRow(ctx, `
		SELECT id, worker_id, name, status, created_at
		FROM worker_profiles WHERE id = $1
	`, id)
	p, err := scanWorkerProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: worker profile %s", models.ErrNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

// GetWorkerStatus returns the availability of a worker profile.
func (s *PostgresStore) GetWorkerStatus(ctx context.Context, id uuid.UUID) (models.WorkerStatus, error) {
	p, err := s.GetWorkerProfile(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Status, nil
}

// SetWorkerStatus updates the availability of a worker profile.
func (s *PostgresStore) SetWorkerStatus(ctx context.Context, id uuid.UUID, status models.WorkerStatus) error {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `UPDATE worker_profiles SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: worker profile %s", models.ErrNotFound, id)
	}
	return nil
}

// CreateRequest inserts a new request row.
func (s *PostgresStore) CreateRequest(ctx context.Context, req *models.Request) error {
	defer observePostgres(time.Now())

	_, err := s.pool.Exec(ctx, `
		INSERT INTO requests (id, client_id, worker_id, worker_profile_id, status, price, message,
			preferred_date_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $9)
	`, req.ID, req.ClientID, req.WorkerID, req.WorkerProfileID, req.Status,
		req.Price.String(), req.Message, req.PreferredDateTime, req.CreatedAt)
	return err
}

// GetRequest retrieves a request by ID.
func (s *PostgresStore) GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	defer observePostgres(time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: request %s", models.ErrNotFound, id)
		}
		return nil, err
	}
	return req, nil
}

// ListRequests retrieves requests matching the filter, newest first.
func (s *PostgresStore) ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	defer observePostgres(time.Now())

	var (
		where []string
		args  []any
	)
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.WorkerID != nil {
		args = append(args, *filter.WorkerID)
		where = append(where, fmt.Sprintf("worker_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
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

// transition applies a conditional update and returns the updated row. A
// request that exists but fails the condition yields models.ErrInvalidState.
func (s *PostgresStore) transition(ctx context.Context, id uuid.UUID, set, cond string, args ...any) (*models.Request, error) {
	defer observePostgres(time.Now())

	query := `UPDATE requests SET ` + set + ` WHERE id = $1 AND ` + cond + ` RETURNING ` + requestColumns
	row := s.pool.QueryRow(ctx, query, append([]any{id}, args...)...)
	req, err := scanRequest(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return nil, s.conditionFailed(ctx, id)
}

// conditionFailed explains why a conditional update matched no row.
func (s *PostgresStore) conditionFailed(ctx context.Context, id uuid.UUID) error {
	current, err := s.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: request is %s", models.ErrInvalidState, current.Status)
}

// AcceptRequest moves a pending request to accepted.
func (s *PostgresStore) AcceptRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error) {
	return s.transition(ctx, id,
		`status = 'accepted', accepted_at = $2, updated_at = $2`,
		`status = 'pending'`, at)
}

// RejectRequest moves a pending request to rejected.
func (s *PostgresStore) RejectRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error) {
	return s.transition(ctx, id,
		`status = 'rejected', rejected_at = $2, updated_at = $2`,
		`status = 'pending'`, at)
}

// StartRequest sets loaded_at on an accepted request that has not started.
func (s *PostgresStore) StartRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error) {
	return s.transition(ctx, id,
		`loaded_at = $2, updated_at = $2`,
		`status = 'accepted' AND loaded_at IS NULL`, at)
}

// CompleteRequest moves an accepted request to completed and stops tracking.
func (s *PostgresStore) CompleteRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error) {
	return s.transition(ctx, id,
		`status = 'completed', completed_at = $2, updated_at = $2,
		 tracking_active_client = FALSE, tracking_active_worker = FALSE`,
		`status = 'accepted'`, at)
}

// UpdateLocation overwrites the role's location snapshot and marks its
// tracking active. The row lock taken on the previous flag makes concurrent
// first updates queue, so only one of them reports started.
func (s *PostgresStore) UpdateLocation(ctx context.Context, id uuid.UUID, role models.Role, coord models.Coordinate) (*models.Request, bool, error) {
	defer observePostgres(time.Now())

	lat, lng, at, flag := locationColumns(role)
	query := fmt.Sprintf(`
		UPDATE requests SET %s = $2, %s = $3, %s = $4, %s = TRUE, updated_at = $4
		FROM (SELECT id AS prev_id, %s AS was_active FROM requests WHERE id = $1 FOR UPDATE) prev
		WHERE id = prev.prev_id AND status = 'accepted'
		RETURNING %s, prev.was_active`, lat, lng, at, flag, flag, requestColumns)

	var wasActive bool
	row := s.pool.QueryRow(ctx, query, id, coord.Lat, coord.Lng, coord.UpdatedAt)
	req, err := scanRequest(trailingScan{rowScanner: row, extra: []any{&wasActive}})
	if err == nil {
		return req, !wasActive, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	return nil, false, s.conditionFailed(ctx, id)
}

// StopTracking clears the role's tracking flag.
func (s *PostgresStore) StopTracking(ctx context.Context, id uuid.UUID, role models.Role) (*models.Request, error) {
	_, _, _, flag := locationColumns(role)
	return s.transition(ctx, id, flag+` = FALSE`, `status = 'accepted'`)
}

// AppendMessage appends a message to a request's thread while the request
// still accepts messages.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO request_messages (id, request_id, sender_id, text, created_at)
		SELECT $1::text, $2::uuid, $3::uuid, $4::text, $5::timestamptz
		WHERE EXISTS (
			SELECT 1 FROM requests WHERE id = $2::uuid AND status IN ('pending', 'accepted')
		)
	`, msg.ID, msg.RequestID, msg.SenderID, msg.Text, msg.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		current, err := s.GetRequest(ctx, msg.RequestID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: messaging closed for a %s request", models.ErrInvalidState, current.Status)
	}
	return nil
}

// ListMessages retrieves a request's thread in append order.
func (s *PostgresStore) ListMessages(ctx context.Context, requestID uuid.UUID) ([]models.Message, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, sender_id, text, created_at
		FROM request_messages
		WHERE request_id = $1
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
func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	defer observePostgres(time.Now())

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, sender_id, type, title, message,
			related_request, is_read, priority, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, n.ID, n.RecipientID, n.SenderID, n.Type, n.Title, n.Message,
		n.RelatedRequest, n.IsRead, n.Priority, n.CreatedAt, n.ExpiresAt)
	return err
}

// ListNotifications retrieves a recipient's unexpired notifications, newest first.
func (s *PostgresStore) ListNotifications(ctx context.Context, recipient uuid.UUID, limit, offset int, now time.Time) ([]models.Notification, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, recipient, now, limit, offset)
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
func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, recipient uuid.UUID, now time.Time) (int64, error) {
	defer observePostgres(time.Now())

	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND is_read = FALSE AND (expires_at IS NULL OR expires_at > $2)
	`, recipient, now).Scan(&count)
	return count, err
}

// MarkNotificationRead marks one of the recipient's unexpired notifications as read.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id, recipient uuid.UUID, now time.Time) (*models.Notification, error) {
	defer observePostgres(time.Now())

	row := s.pool.QueryRow(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2 AND (expires_at IS NULL OR expires_at > $3)
		RETURNING `+notificationColumns, id, recipient, now)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: notification %s", models.ErrNotFound, id)
		}
		return nil, err
	}
	return n, nil
}

// MarkAllNotificationsRead marks every unread notification of the recipient as read.
func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, recipient uuid.UUID) (int64, error) {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND is_read = FALSE
	`, recipient)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteNotification deletes one of the recipient's unexpired notifications.
func (s *PostgresStore) DeleteNotification(ctx context.Context, id, recipient uuid.UUID, now time.Time) error {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE id = $1 AND recipient_id = $2 AND (expires_at IS NULL OR expires_at > $3)
	`, id, recipient, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: notification %s", models.ErrNotFound, id)
	}
	return nil
}

// DeleteReadNotifications deletes every read notification of the recipient.
func (s *PostgresStore) DeleteReadNotifications(ctx context.Context, recipient uuid.UUID) (int64, error) {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE recipient_id = $1 AND is_read = TRUE`, recipient)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredNotifications deletes notifications whose expiry has passed.
func (s *PostgresStore) DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteReadNotificationsBefore deletes read notifications created before cutoff.
func (s *PostgresStore) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE is_read = TRUE AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
