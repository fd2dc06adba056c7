package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore is the only component that writes mentor credential rows.
// Token material is serialized through the codec and, when a secret provider
// is configured, encrypted before it touches the database.
type CredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*mentorCredentialRecord]
	codec   core.TokenCodec
	secrets core.SecretProvider
	keyID   string
}

func (s *CredentialStore) GetByMentor(ctx context.Context, mentorID string) (core.MentorCredential, error) {
	if s == nil || s.db == nil {
		return core.MentorCredential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	mentorID = strings.TrimSpace(mentorID)
	if mentorID == "" {
		return core.MentorCredential{}, fmt.Errorf("sqlstore: mentor id is required")
	}

	record := &mentorCredentialRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.mentor_id = ?", mentorID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.MentorCredential{}, fmt.Errorf("sqlstore: mentor %q: %w", mentorID, core.ErrCredentialNotFound)
		}
		return core.MentorCredential{}, err
	}
	return s.recordToDomain(ctx, record)
}

func (s *CredentialStore) Save(ctx context.Context, credential core.MentorCredential) (core.MentorCredential, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.MentorCredential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	mentorID := strings.TrimSpace(credential.MentorID)
	if mentorID == "" {
		return core.MentorCredential{}, fmt.Errorf("sqlstore: mentor id is required")
	}
	credential.MentorID = mentorID

	payload, err := s.encodePayload(ctx, credential)
	if err != nil {
		return core.MentorCredential{}, err
	}

	now := time.Now().UTC()
	record := &mentorCredentialRecord{
		ID:              strings.TrimSpace(credential.ID),
		MentorID:        mentorID,
		TokenPayload:    payload,
		PayloadFormat:   s.tokenCodec().Format(),
		PayloadVersion:  s.tokenCodec().Version(),
		EncryptionKeyID: s.keyID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if credential.ExpiresAt != nil {
		expiresAt := credential.ExpiresAt.UTC()
		record.ExpiresAt = &expiresAt
	}
	if credential.LastRefreshedAt != nil {
		refreshedAt := credential.LastRefreshedAt.UTC()
		record.LastRefreshedAt = &refreshedAt
	}

	// One credential row per mentor; re-saving replaces the token payload.
	_, err = s.db.NewInsert().
		Model(record).
		On("CONFLICT (mentor_id) DO UPDATE").
		Set("token_payload = EXCLUDED.token_payload").
		Set("payload_format = EXCLUDED.payload_format").
		Set("payload_version = EXCLUDED.payload_version").
		Set("encryption_key_id = EXCLUDED.encryption_key_id").
		Set("expires_at = EXCLUDED.expires_at").
		Set("last_refreshed_at = EXCLUDED.last_refreshed_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.MentorCredential{}, err
	}
	return s.GetByMentor(ctx, mentorID)
}

// UpdateTokens replaces the full token set in one statement. The access
// token, refresh token and expiry always move together.
func (s *CredentialStore) UpdateTokens(ctx context.Context, mentorID string, update core.TokenUpdate) (core.MentorCredential, error) {
	if s == nil || s.db == nil {
		return core.MentorCredential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	mentorID = strings.TrimSpace(mentorID)
	if mentorID == "" {
		return core.MentorCredential{}, fmt.Errorf("sqlstore: mentor id is required")
	}
	if err := update.Validate(); err != nil {
		return core.MentorCredential{}, err
	}

	current, err := s.GetByMentor(ctx, mentorID)
	if err != nil {
		return core.MentorCredential{}, err
	}
	current.AccessToken = strings.TrimSpace(update.AccessToken)
	current.RefreshToken = strings.TrimSpace(update.RefreshToken)
	expiresAt := update.ExpiresAt.UTC()
	current.ExpiresAt = &expiresAt

	payload, err := s.encodePayload(ctx, current)
	if err != nil {
		return core.MentorCredential{}, err
	}

	refreshedAt := update.RefreshedAt.UTC()
	if update.RefreshedAt.IsZero() {
		refreshedAt = time.Now().UTC()
	}
	result, err := s.db.NewUpdate().
		Model((*mentorCredentialRecord)(nil)).
		Set("token_payload = ?", payload).
		Set("expires_at = ?", expiresAt).
		Set("last_refreshed_at = ?", refreshedAt).
		Set("updated_at = ?", time.Now().UTC()).
		Where("mentor_id = ?", mentorID).
		Exec(ctx)
	if err != nil {
		return core.MentorCredential{}, err
	}
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected == 0 {
		return core.MentorCredential{}, fmt.Errorf("sqlstore: mentor %q: %w", mentorID, core.ErrCredentialNotFound)
	}
	return s.GetByMentor(ctx, mentorID)
}

// ClearTokens disconnects the mentor by nulling the token payload. The row
// stays so reconnect keeps the same credential identity.
func (s *CredentialStore) ClearTokens(ctx context.Context, mentorID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	mentorID = strings.TrimSpace(mentorID)
	if mentorID == "" {
		return fmt.Errorf("sqlstore: mentor id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*mentorCredentialRecord)(nil)).
		Set("token_payload = NULL").
		Set("expires_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("mentor_id = ?", mentorID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected == 0 {
		return fmt.Errorf("sqlstore: mentor %q: %w", mentorID, core.ErrCredentialNotFound)
	}
	return nil
}

func (s *CredentialStore) ListExpiring(ctx context.Context, before time.Time) ([]core.MentorCredential, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records := []*mentorCredentialRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.token_payload IS NOT NULL").
		Where("?TableAlias.expires_at IS NOT NULL").
		Where("?TableAlias.expires_at < ?", before.UTC()).
		Order("expires_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	credentials := make([]core.MentorCredential, 0, len(records))
	for _, record := range records {
		credential, decodeErr := s.recordToDomain(ctx, record)
		if decodeErr != nil {
			return nil, decodeErr
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}

func (s *CredentialStore) recordToDomain(ctx context.Context, record *mentorCredentialRecord) (core.MentorCredential, error) {
	tokens := core.MentorCredential{}
	if len(record.TokenPayload) > 0 {
		decoded, err := s.decodePayload(ctx, record.TokenPayload)
		if err != nil {
			return core.MentorCredential{}, err
		}
		tokens = decoded
	}
	return record.toDomain(tokens), nil
}

func (s *CredentialStore) encodePayload(ctx context.Context, credential core.MentorCredential) ([]byte, error) {
	if !credential.Connected() {
		return nil, nil
	}
	encoded, err := s.tokenCodec().Encode(credential)
	if err != nil {
		return nil, err
	}
	if s.secrets == nil {
		return encoded, nil
	}
	encrypted, err := s.secrets.Encrypt(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encrypt token payload: %w", err)
	}
	return encrypted, nil
}

func (s *CredentialStore) decodePayload(ctx context.Context, payload []byte) (core.MentorCredential, error) {
	if s.secrets != nil {
		decrypted, err := s.secrets.Decrypt(ctx, payload)
		if err != nil {
			return core.MentorCredential{}, fmt.Errorf("sqlstore: decrypt token payload: %w", err)
		}
		payload = decrypted
	}
	return s.tokenCodec().Decode(payload)
}

func (s *CredentialStore) tokenCodec() core.TokenCodec {
	if s != nil && s.codec != nil {
		return s.codec
	}
	return core.JSONTokenCodec{}
}
