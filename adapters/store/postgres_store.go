package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/ports"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const uniqueViolation = "23505"

type bridgeRequestRecord struct {
	RequestID     string     `gorm:"column:request_id;type:varchar(66);primaryKey"`
	UserAddress   string     `gorm:"column:user_address;type:varchar(42);not null;index"`
	ChipAddress   string     `gorm:"column:chip_address;type:varchar(42);not null"`
	ChipSignature string     `gorm:"column:chip_signature;type:text;not null"`
	SourceChain   uint64     `gorm:"column:source_chain;not null"`
	DestChain     uint64     `gorm:"column:dest_chain;not null"`
	TokenAddress  string     `gorm:"column:token_address;type:varchar(42);not null"`
	Amount        string     `gorm:"column:amount;type:numeric(78,0);not null"`
	CallData      string     `gorm:"column:call_data;type:text;not null"`
	Timestamp     uint64     `gorm:"column:timestamp;not null"`
	Nonce         string     `gorm:"column:nonce;type:varchar(66);not null"`
	Status        string     `gorm:"column:status;type:varchar(16);not null;default:pending;index"`
	TxHash        *string    `gorm:"column:tx_hash;type:varchar(66)"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	ExpiresAt     time.Time  `gorm:"column:expires_at;not null"`
	CompletedAt   *time.Time `gorm:"column:completed_at"`
}

func (bridgeRequestRecord) TableName() string { return "bridge_requests" }

type pushSubscriptionRecord struct {
	ID                   uint      `gorm:"primaryKey"`
	UserAddress          string    `gorm:"column:user_address;type:varchar(42);not null;uniqueIndex:idx_push_user_endpoint"`
	SubscriptionEndpoint string    `gorm:"column:subscription_endpoint;type:text;not null;uniqueIndex:idx_push_user_endpoint"`
	SubscriptionKeys     string    `gorm:"column:subscription_keys;type:jsonb;not null"`
	CreatedAt            time.Time `gorm:"column:created_at"`
	UpdatedAt            time.Time `gorm:"column:updated_at"`
}

func (pushSubscriptionRecord) TableName() string { return "push_subscriptions" }

// PostgresStore keeps bridge requests and push subscriptions in PostgreSQL
type PostgresStore struct {
	db *gorm.DB
}

var (
	_ ports.BridgeRequestStore = (*PostgresStore)(nil)
	_ ports.SubscriptionStore  = (*PostgresStore)(nil)
)

// OpenPostgres connects to dsn and migrates the schema
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// NewPostgresStore wraps an open gorm connection
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&bridgeRequestRecord{}, &pushSubscriptionRecord{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create inserts a pending bridge request
func (s *PostgresStore) Create(ctx context.Context, req *core.BridgeRequest) error {
	record := toBridgeRecord(req)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.ErrDuplicateRequest
		}
		return classify("create bridge request", fmt.Errorf("failed to create bridge request: %w", err))
	}

	return nil
}

// Get fetches a bridge request by id
func (s *PostgresStore) Get(ctx context.Context, requestID string) (*core.BridgeRequest, error) {
	var record bridgeRequestRecord
	err := s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrRequestNotFound
	}
	if err != nil {
		return nil, classify("get bridge request", fmt.Errorf("failed to get bridge request: %w", err))
	}

	return record.toCore(), nil
}

// Complete runs the single conditional update that moves a request out of pending
func (s *PostgresStore) Complete(ctx context.Context, requestID, txHash string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&bridgeRequestRecord{}).
		Where("request_id = ? AND status = ? AND expires_at > ?", requestID, string(core.BridgeStatusPending), now).
		Updates(map[string]any{
			"status":       string(core.BridgeStatusCompleted),
			"tx_hash":      txHash,
			"completed_at": now,
		})
	if result.Error != nil {
		return classify("complete bridge request", fmt.Errorf("failed to complete bridge request: %w", result.Error))
	}
	if result.RowsAffected == 0 {
		return core.ErrNotFoundOrCompleted
	}

	return nil
}

// ListByUser returns every subscription of a user
func (s *PostgresStore) ListByUser(ctx context.Context, userAddress string) ([]core.PushSubscription, error) {
	var records []pushSubscriptionRecord
	err := s.db.WithContext(ctx).
		Where("user_address = ?", core.NormalizeAddress(userAddress)).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, classify("list subscriptions", fmt.Errorf("failed to list subscriptions: %w", err))
	}

	subs := make([]core.PushSubscription, 0, len(records))
	for _, r := range records {
		var keys core.PushKeys
		if err := json.Unmarshal([]byte(r.SubscriptionKeys), &keys); err != nil {
			return nil, fmt.Errorf("failed to decode subscription keys: %w", err)
		}
		subs = append(subs, core.PushSubscription{
			UserAddress: r.UserAddress,
			Endpoint:    r.SubscriptionEndpoint,
			Keys:        keys,
		})
	}

	return subs, nil
}

// Upsert inserts or refreshes the keys of (user, endpoint)
func (s *PostgresStore) Upsert(ctx context.Context, sub core.PushSubscription) error {
	keys, err := json.Marshal(sub.Keys)
	if err != nil {
		return fmt.Errorf("failed to encode subscription keys: %w", err)
	}

	record := pushSubscriptionRecord{
		UserAddress:          core.NormalizeAddress(sub.UserAddress),
		SubscriptionEndpoint: sub.Endpoint,
		SubscriptionKeys:     string(keys),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_address"}, {Name: "subscription_endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"subscription_keys", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return classify("upsert subscription", fmt.Errorf("failed to save subscription: %w", err))
	}

	return nil
}

// DeleteByEndpoint removes one subscription
func (s *PostgresStore) DeleteByEndpoint(ctx context.Context, userAddress, endpoint string) error {
	err := s.db.WithContext(ctx).
		Where("user_address = ? AND subscription_endpoint = ?", core.NormalizeAddress(userAddress), endpoint).
		Delete(&pushSubscriptionRecord{}).Error
	if err != nil {
		return classify("delete subscription", fmt.Errorf("failed to delete subscription: %w", err))
	}

	return nil
}

func toBridgeRecord(req *core.BridgeRequest) bridgeRequestRecord {
	status := req.Status
	if status == "" {
		status = core.BridgeStatusPending
	}
	record := bridgeRequestRecord{
		RequestID:     req.RequestID,
		UserAddress:   req.UserAddress,
		ChipAddress:   req.ChipAddress,
		ChipSignature: req.ChipSignature,
		SourceChain:   req.SourceChain,
		DestChain:     req.DestChain,
		TokenAddress:  req.TokenAddress,
		Amount:        req.Amount,
		CallData:      req.CallData,
		Timestamp:     req.Timestamp,
		Nonce:         req.Nonce,
		Status:        string(status),
		CreatedAt:     req.CreatedAt,
		ExpiresAt:     req.ExpiresAt,
		CompletedAt:   req.CompletedAt,
	}
	if req.TxHash != "" {
		record.TxHash = &req.TxHash
	}
	return record
}

func (r *bridgeRequestRecord) toCore() *core.BridgeRequest {
	req := &core.BridgeRequest{
		RequestID:     r.RequestID,
		UserAddress:   r.UserAddress,
		ChipAddress:   r.ChipAddress,
		ChipSignature: r.ChipSignature,
		SourceChain:   r.SourceChain,
		DestChain:     r.DestChain,
		TokenAddress:  r.TokenAddress,
		Amount:        r.Amount,
		CallData:      r.CallData,
		Timestamp:     r.Timestamp,
		Nonce:         r.Nonce,
		Status:        core.BridgeStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
		CompletedAt:   r.CompletedAt,
	}
	if r.TxHash != nil {
		req.TxHash = *r.TxHash
	}
	return req
}
