package store

import (
	"context"
	"math/big"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver; nothing in this package pings or queries through it
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
)

// sessionRecord and transferRecord are the GORM row shapes. Amounts
// and raw token values are stored as strings; Postgres numeric/bigint
// round-tripping through float columns would reintroduce the
// floating-point amount bugs this service is built to avoid.
type sessionRecord struct {
	ID                string `gorm:"primaryKey"`
	Amount            string
	Currency          string
	Network           string `gorm:"index"`
	Address           string
	Status            string `gorm:"index"`
	CreatedAt         time.Time
	ExpiresAt         time.Time
	CompletedAt       *time.Time
	ClientRefID       string `gorm:"index"`
	OriginalSessionID string
	MatchedTransferID string
}

func (sessionRecord) TableName() string { return "payment_sessions" }

type transferRecord struct {
	ID            string `gorm:"primaryKey"`
	TxHash        string `gorm:"index:idx_transfer_key,unique"`
	LogIndex      uint   `gorm:"index:idx_transfer_key,unique"`
	Network       string `gorm:"index:idx_transfer_key,unique"`
	TokenContract string
	FromAddress   string
	ToAddress     string
	RawValue      string
	Amount        string
	BlockNumber   uint64
	FirstSeenAt   time.Time
	Confirmations uint64
	Status        string
	ConfirmedAt   *time.Time
	SessionID     string `gorm:"index"`
}

func (transferRecord) TableName() string { return "payment_transfers" }

// PostgresStore is the durable Store implementation, grounded on the
// teacher's GORM repository layer (internal/repository), adapted from
// its upsert-on-conflict write pattern to this domain's two tables.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore opens dsn and migrates the payment_sessions and
// payment_transfers tables.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&sessionRecord{}, &transferRecord{}); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	rec := sessionRecord{
		ID:                sess.ID,
		Amount:            sess.Amount,
		Currency:          sess.Currency,
		Network:           sess.Network,
		Address:           sess.Address,
		Status:            string(sess.Status),
		CreatedAt:         sess.CreatedAt,
		ExpiresAt:         sess.ExpiresAt,
		CompletedAt:       sess.CompletedAt,
		ClientRefID:       sess.ClientRefID,
		OriginalSessionID: sess.OriginalSessionID,
		MatchedTransferID: sess.MatchedTransferID,
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

func (p *PostgresStore) SaveTransfer(ctx context.Context, t *domain.Transfer) error {
	raw := "0"
	if t.RawValue != nil {
		raw = t.RawValue.String()
	}
	rec := transferRecord{
		ID:            t.ID,
		TxHash:        t.TxHash,
		LogIndex:      t.LogIndex,
		Network:       t.Network,
		TokenContract: t.TokenContract,
		FromAddress:   t.From,
		ToAddress:     t.To,
		RawValue:      raw,
		Amount:        t.Amount,
		BlockNumber:   t.BlockNumber,
		FirstSeenAt:   t.FirstSeenAt,
		Confirmations: t.Confirmations,
		Status:        string(t.Status),
		ConfirmedAt:   t.ConfirmedAt,
		SessionID:     t.SessionID,
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

func (p *PostgresStore) LoadSessions(ctx context.Context) ([]*domain.Session, error) {
	var rows []sessionRecord
	if err := p.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.Session{
			ID:                r.ID,
			Amount:            r.Amount,
			Currency:          r.Currency,
			Network:           r.Network,
			Address:           r.Address,
			Status:            domain.SessionStatus(r.Status),
			CreatedAt:         r.CreatedAt,
			ExpiresAt:         r.ExpiresAt,
			CompletedAt:       r.CompletedAt,
			ClientRefID:       r.ClientRefID,
			OriginalSessionID: r.OriginalSessionID,
			MatchedTransferID: r.MatchedTransferID,
		})
	}
	return out, nil
}

func (p *PostgresStore) LoadTransfers(ctx context.Context) ([]*domain.Transfer, error) {
	var rows []transferRecord
	if err := p.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Transfer, 0, len(rows))
	for _, r := range rows {
		raw, ok := new(big.Int).SetString(r.RawValue, 10)
		if !ok {
			raw = big.NewInt(0)
		}
		out = append(out, &domain.Transfer{
			ID:            r.ID,
			TxHash:        r.TxHash,
			LogIndex:      r.LogIndex,
			Network:       r.Network,
			TokenContract: r.TokenContract,
			From:          r.FromAddress,
			To:            r.ToAddress,
			RawValue:      raw,
			Amount:        r.Amount,
			BlockNumber:   r.BlockNumber,
			FirstSeenAt:   r.FirstSeenAt,
			Confirmations: r.Confirmations,
			Status:        domain.TransferStatus(r.Status),
			ConfirmedAt:   r.ConfirmedAt,
			SessionID:     r.SessionID,
		})
	}
	return out, nil
}

func (p *PostgresStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
