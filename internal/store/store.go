package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Shivamkadam692/WorkConnect/internal/models"
)

// DataStore defines the interface for persistent storage of requests,
// notifications and worker profiles. Both PostgresStore and SQLiteStore
// implement this interface.
//
// Lookups of absent rows return an error wrapping models.ErrNotFound.
// Conditional updates whose precondition no longer holds return an error
// wrapping models.ErrInvalidState.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Worker profile operations
	CreateWorkerProfile(ctx context.Context, workerID uuid.UUID, name string) (*models.WorkerProfile, error)
	GetWorkerProfile(ctx context.Context, id uuid.UUID) (*models.WorkerProfile, error)
	GetWorkerStatus(ctx context.Context, id uuid.UUID) (models.WorkerStatus, error)
	SetWorkerStatus(ctx context.Context, id uuid.UUID, status models.WorkerStatus) error

	// Request operations
	CreateRequest(ctx context.Context, req *models.Request) error
	GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error)
	ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.Request, error)
	AcceptRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error)
	RejectRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error)
	StartRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error)
	CompleteRequest(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error)
	// UpdateLocation also reports whether this write switched the role's
	// tracking on, so exactly one of concurrent first updates sees true.
	UpdateLocation(ctx context.Context, id uuid.UUID, role models.Role, coord models.Coordinate) (*models.Request, bool, error)
	StopTracking(ctx context.Context, id uuid.UUID, role models.Role) (*models.Request, error)

	// Message operations
	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, requestID uuid.UUID) ([]models.Message, error)

	// Notification operations
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, recipient uuid.UUID, limit, offset int, now time.Time) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, recipient uuid.UUID, now time.Time) (int64, error)
	MarkNotificationRead(ctx context.Context, id, recipient uuid.UUID, now time.Time) (*models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, recipient uuid.UUID) (int64, error)
	DeleteNotification(ctx context.Context, id, recipient uuid.UUID, now time.Time) error
	DeleteReadNotifications(ctx context.Context, recipient uuid.UUID) (int64, error)
	DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error)
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// trailingScan scans extra destinations after the ones a scan helper asks for.
type trailingScan struct {
	rowScanner
	extra []any
}

func (t trailingScan) Scan(dest ...any) error {
	return t.rowScanner.Scan(append(dest, t.extra...)...)
}

// scanRequest reads the columns listed in requestColumns (Postgres) or
// sqliteRequestColumns, which share one order.
func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		req                  models.Request
		status, price        string
		clientLat, clientLng *float64
		workerLat, workerLng *float64
		clientAt, workerAt   *time.Time
	)
	err := row.Scan(
		&req.ID,
		&req.ClientID,
		&req.WorkerID,
		&req.WorkerProfileID,
		&status,
		&price,
		&req.Message,
		&req.PreferredDateTime,
		&clientLat, &clientLng, &clientAt,
		&workerLat, &workerLng, &workerAt,
		&req.TrackingActiveClient,
		&req.TrackingActiveWorker,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.AcceptedAt,
		&req.RejectedAt,
		&req.LoadedAt,
		&req.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = models.Status(status)
	if price != "" {
		if req.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
	}
	req.ClientLocation = coordinate(clientLat, clientLng, clientAt)
	req.WorkerLocation = coordinate(workerLat, workerLng, workerAt)
	return &req, nil
}

func coordinate(lat, lng *float64, at *time.Time) *models.Coordinate {
	if lat == nil || lng == nil || at == nil {
		return nil
	}
	return &models.Coordinate{Lat: *lat, Lng: *lng, UpdatedAt: *at}
}

func scanMessage(row rowScanner) (models.Message, error) {
	var msg models.Message
	err := row.Scan(&msg.ID, &msg.RequestID, &msg.SenderID, &msg.Text, &msg.CreatedAt)
	return msg, err
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n             models.Notification
		typ, priority string
	)
	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.SenderID,
		&typ,
		&n.Title,
		&n.Message,
		&n.RelatedRequest,
		&n.IsRead,
		&priority,
		&n.CreatedAt,
		&n.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	n.Type = models.NotificationType(typ)
	n.Priority = models.Priority(priority)
	return &n, nil
}

func scanWorkerProfile(row rowScanner) (*models.WorkerProfile, error) {
	var (
		p      models.WorkerProfile
		status string
	)
	if err := row.Scan(&p.ID, &p.WorkerID, &p.Name, &status, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Status = models.WorkerStatus(status)
	return &p, nil
}

// locationColumns returns the snapshot columns and tracking flag for role.
func locationColumns(role models.Role) (lat, lng, at, flag string) {
	if role == models.RoleClient {
		return "client_lat", "client_lng", "client_location_at", "tracking_active_client"
	}
	return "worker_lat", "worker_lng", "worker_location_at", "tracking_active_worker"
}

// clampPage bounds list limits the same way for every store.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
