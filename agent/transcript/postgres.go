package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type DatabaseConfig struct {
	DSN string `envconfig:"DSN"`
}

type entryRow struct {
	bun.BaseModel `bun:"table:transcript_entries,alias:te"`

	Seq            int64             `bun:"seq,pk,autoincrement"`
	ID             string            `bun:"id,notnull,unique"`
	ConversationID string            `bun:"conversation_id,notnull"`
	Sender         string            `bun:"sender,notnull"`
	ContentType    string            `bun:"content_type,notnull"`
	Payload        contractx.Payload `bun:"payload,type:jsonb,notnull"`
	CreatedAt      time.Time         `bun:"created_at,notnull"`
}

func toRow(e contractx.TranscriptEntry) *entryRow {
	return &entryRow{
		ID:             e.ID,
		ConversationID: e.ConversationID,
		Sender:         e.Sender,
		ContentType:    string(e.ContentType),
		Payload:        e.Payload,
		CreatedAt:      e.Timestamp,
	}
}

func (r entryRow) entry() contractx.TranscriptEntry {
	return contractx.TranscriptEntry{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Sender:         r.Sender,
		ContentType:    contractx.ContentType(r.ContentType),
		Payload:        r.Payload,
		Timestamp:      r.CreatedAt.UTC(),
	}
}

// PostgresStore keeps entries in one table ordered by an identity column.
type PostgresStore struct {
	db  *bun.DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(cfg DatabaseConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &PostgresStore{db: bun.NewDB(sqldb, pgdialect.New()), now: time.Now}, nil
}

// Migrate creates the table and index when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*entryRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create transcript table: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*entryRow)(nil)).
		Index("transcript_entries_conversation_idx").
		Column("conversation_id", "seq").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create transcript index: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry contractx.TranscriptEntry) (contractx.TranscriptEntry, error) {
	entry, err := prepare(entry, s.now)
	if err != nil {
		return contractx.TranscriptEntry{}, err
	}
	if _, err := s.db.NewInsert().Model(toRow(entry)).Exec(ctx); err != nil {
		return contractx.TranscriptEntry{}, fmt.Errorf("insert transcript entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) List(ctx context.Context, conversationID string, limit int) ([]contractx.TranscriptEntry, error) {
	id, err := conversationKey(conversationID)
	if err != nil {
		return nil, err
	}

	var rows []entryRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("conversation_id = ?", id).
		OrderExpr("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("select transcript entries: %w", err)
	}

	out := make([]contractx.TranscriptEntry, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.entry()
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
