package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type mentorCredentialRecord struct {
	bun.BaseModel `bun:"table:mentor_credentials,alias:mc"`

	ID              string     `bun:"id,pk"`
	MentorID        string     `bun:"mentor_id,notnull"`
	TokenPayload    []byte     `bun:"token_payload"`
	PayloadFormat   string     `bun:"payload_format,notnull"`
	PayloadVersion  int        `bun:"payload_version,notnull"`
	EncryptionKeyID string     `bun:"encryption_key_id"`
	ExpiresAt       *time.Time `bun:"expires_at,nullzero"`
	LastRefreshedAt *time.Time `bun:"last_refreshed_at,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type bookingRecord struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID                 string     `bun:"id,pk"`
	MentorID           string     `bun:"mentor_id,notnull"`
	ServiceID          string     `bun:"service_id,notnull"`
	ClientUserID       string     `bun:"client_user_id"`
	ClientGuestName    string     `bun:"client_guest_name"`
	ClientGuestEmail   string     `bun:"client_guest_email"`
	SessionDate        string     `bun:"session_date,notnull"`
	SessionTime        string     `bun:"session_time,notnull"`
	Status             string     `bun:"status,notnull"`
	BookingRef         *string    `bun:"booking_ref"`
	PaymentRef         *string    `bun:"payment_ref"`
	SchedulingEventRef *string    `bun:"scheduling_event_ref"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt          *time.Time `bun:"deleted_at,soft_delete"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:webhook_deliveries,alias:wd"`

	ID             string     `bun:"id,pk"`
	ClaimID        string     `bun:"claim_id,notnull"`
	ProviderID     string     `bun:"provider_id,notnull"`
	DeliveryID     string     `bun:"delivery_id,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	NextAttemptAt  *time.Time `bun:"next_attempt_at,nullzero"`
	LastError      string     `bun:"last_error"`
	Payload        []byte     `bun:"payload"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type unmatchedEventRecord struct {
	bun.BaseModel `bun:"table:unmatched_events,alias:ue"`

	ID          string         `bun:"id,pk"`
	ProviderID  string         `bun:"provider_id,notnull"`
	Kind        string         `bun:"kind,notnull"`
	ExternalRef string         `bun:"external_ref,notnull"`
	Reason      string         `bun:"reason,notnull"`
	Payload     map[string]any `bun:"payload,type:jsonb,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
