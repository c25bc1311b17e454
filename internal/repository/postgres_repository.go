package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"products-stocks-telegram/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewPostgresStore creates a new Postgres backed store
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Claim(ctx context.Context, requestID, operator uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE product_stocks SET fixed_by = $1, fixed_at = $2 WHERE id = $3 AND fixed_by IS NULL`,
		operator, s.now().UTC(), requestID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to claim request: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Release(ctx context.Context, requestID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE product_stocks SET fixed_by = NULL, fixed_at = NULL WHERE id = $1`, requestID)
	if err != nil {
		return 0, fmt.Errorf("failed to release request: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) FindClaimant(ctx context.Context, requestID uuid.UUID) (*domain.Claimant, error) {
	var c domain.Claimant
	err := s.db.QueryRow(ctx, `
		SELECT s.fixed_by, COALESCE(p.username, '')
		FROM product_stocks s
		LEFT JOIN users_profiles p ON p.id = s.fixed_by
		WHERE s.id = $1 AND s.fixed_by IS NOT NULL
	`, requestID).Scan(&c.ProfileID, &c.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrClaimantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find claimant: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ReleaseExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE product_stocks SET fixed_by = NULL, fixed_at = NULL
		WHERE fixed_by IS NOT NULL AND fixed_at < $1 AND status IN ($2, $3)
	`, olderThan.UTC(), string(domain.StatusPackage), string(domain.StatusMoving))
	if err != nil {
		return 0, fmt.Errorf("failed to release expired claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

const selectRequestPg = `
	SELECT s.id, s.number, s.status, s.profile_id, s.destination_id, s.fixed_by, s.fixed_at,
	       s.delivery_name, s.comment, s.modified_at,
	       COALESCE(p.username, ''), COALESCE(d.username, '')
	FROM product_stocks s
	LEFT JOIN users_profiles p ON p.id = s.profile_id
	LEFT JOIN users_profiles d ON d.id = s.destination_id
`

func (s *PostgresStore) NextRequest(ctx context.Context, kind domain.QueueKind, owner, operator uuid.UUID) (*domain.StockRequest, error) {
	row := s.db.QueryRow(ctx, selectRequestPg+`
		WHERE s.profile_id = $1 AND s.status = $2 AND (s.fixed_by IS NULL OR s.fixed_by = $3)
		ORDER BY s.modified_at ASC
		LIMIT 1
	`, owner, string(kind.Status()), operator)

	request, err := scanPgRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoEligibleRequest
	}
	return request, err
}

func (s *PostgresStore) FindRequest(ctx context.Context, requestID uuid.UUID) (*domain.StockRequest, error) {
	request, err := scanPgRequest(s.db.QueryRow(ctx, selectRequestPg+` WHERE s.id = $1`, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRequestNotFound
	}
	return request, err
}

func scanPgRequest(row pgx.Row) (*domain.StockRequest, error) {
	var (
		r                    domain.StockRequest
		status               string
		destination, fixedBy uuid.NullUUID
	)
	err := row.Scan(&r.ID, &r.Number, &status, &r.Profile, &destination, &fixedBy, &r.FixedAt,
		&r.DeliveryName, &r.Comment, &r.ModifiedAt, &r.ProfileName, &r.DestinationName)
	if err != nil {
		return nil, err
	}

	r.Status = domain.Status(status)
	if destination.Valid {
		r.Destination = &destination.UUID
	}
	if fixedBy.Valid {
		r.FixedBy = &fixedBy.UUID
	}
	return &r, nil
}

func (s *PostgresStore) LineItems(ctx context.Context, request *domain.StockRequest) ([]domain.LineItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT l.product_name,
		       l.offer_name, l.offer_value, l.offer_postfix,
		       l.variation_name, l.variation_value, l.variation_postfix,
		       l.modification_name, l.modification_value, l.modification_postfix,
		       l.quantity,
		       COALESCE(STRING_AGG(t.storage || ': [' || t.total || ']', ', ' ORDER BY t.storage), ''),
		       COALESCE(SUM(t.total), 0)::INTEGER
		FROM product_stock_lines l
		LEFT JOIN product_stock_totals t
		       ON t.profile_id = $1 AND t.product_id = l.product_id
		      AND t.offer_value = l.offer_value AND t.variation_value = l.variation_value
		      AND t.modification_value = l.modification_value AND t.total > 0
		WHERE l.stock_id = $2
		GROUP BY l.stock_id, l.position
		ORDER BY l.position ASC
	`, request.Profile, request.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductName,
			&item.OfferName, &item.OfferValue, &item.OfferPostfix,
			&item.VariationName, &item.VariationValue, &item.VariationPostfix,
			&item.ModificationName, &item.ModificationValue, &item.ModificationPostfix,
			&item.Quantity, &item.Storage, &item.StockTotal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) Complete(ctx context.Context, kind domain.QueueKind, requestID uuid.UUID) (int64, error) {
	query := `
		UPDATE product_stocks
		SET status = $1, fixed_by = NULL, fixed_at = NULL, modified_at = $2
		WHERE id = $3 AND status = $4
	`
	if kind == domain.KindMove {
		query = `
			UPDATE product_stocks
			SET status = $1, fixed_by = NULL, fixed_at = NULL, modified_at = $2,
			    profile_id = destination_id, destination_id = profile_id
			WHERE id = $3 AND status = $4 AND destination_id IS NOT NULL
		`
	}

	tag, err := s.db.Exec(ctx, query, string(kind.CompletedStatus()), s.now().UTC(), requestID, string(kind.Status()))
	if err != nil {
		return 0, fmt.Errorf("failed to complete request: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) SaveRequest(ctx context.Context, request *domain.StockRequest, lines []LineRecord) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO product_stocks (id, number, status, profile_id, destination_id, fixed_by, fixed_at, delivery_name, comment, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			number = EXCLUDED.number, status = EXCLUDED.status, profile_id = EXCLUDED.profile_id,
			destination_id = EXCLUDED.destination_id,
			fixed_by = CASE WHEN product_stocks.status = EXCLUDED.status AND product_stocks.profile_id = EXCLUDED.profile_id
				THEN product_stocks.fixed_by END,
			fixed_at = CASE WHEN product_stocks.status = EXCLUDED.status AND product_stocks.profile_id = EXCLUDED.profile_id
				THEN product_stocks.fixed_at END,
			delivery_name = EXCLUDED.delivery_name, comment = EXCLUDED.comment, modified_at = EXCLUDED.modified_at
		WHERE product_stocks.status IN ($11, $12) AND product_stocks.modified_at < EXCLUDED.modified_at
	`, request.ID, request.Number, string(request.Status), request.Profile,
		request.Destination, request.FixedBy, request.FixedAt,
		request.DeliveryName, request.Comment, request.ModifiedAt.UTC(),
		string(domain.StatusPackage), string(domain.StatusMoving),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM product_stock_lines WHERE stock_id = $1`, request.ID); err != nil {
		return false, fmt.Errorf("failed to replace line items: %w", err)
	}

	batch := &pgx.Batch{}
	for i, line := range lines {
		batch.Queue(`
			INSERT INTO product_stock_lines (stock_id, position, product_id, product_name,
				offer_name, offer_value, offer_postfix,
				variation_name, variation_value, variation_postfix,
				modification_name, modification_value, modification_postfix, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, request.ID, i, line.ProductID, line.ProductName,
			line.OfferName, line.OfferValue, line.OfferPostfix,
			line.VariationName, line.VariationValue, line.VariationPostfix,
			line.ModificationName, line.ModificationValue, line.ModificationPostfix, line.Quantity,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return false, fmt.Errorf("failed to save line items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit request: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) SaveStockTotal(ctx context.Context, total StockTotal) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO product_stock_totals (profile_id, product_id, offer_value, variation_value, modification_value, storage, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (profile_id, product_id, offer_value, variation_value, modification_value, storage)
		DO UPDATE SET total = EXCLUDED.total
	`, total.Profile, total.ProductID, total.OfferValue, total.VariationValue,
		total.ModificationValue, total.Storage, total.Total)
	if err != nil {
		return fmt.Errorf("failed to save stock total: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveProfileForChat(ctx context.Context, chatID int64) (uuid.UUID, error) {
	var profile uuid.UUID
	err := s.db.QueryRow(ctx,
		`SELECT profile_id FROM telegram_accounts WHERE chat_id = $1 AND active`, chatID,
	).Scan(&profile)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, domain.ErrOperatorUnknown
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to find chat profile: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) ChatsForProfiles(ctx context.Context, profiles []uuid.UUID) ([]int64, error) {
	if len(profiles) == 0 {
		return nil, nil
	}

	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.String()
	}

	rows, err := s.db.Query(ctx,
		`SELECT chat_id FROM telegram_accounts WHERE active AND profile_id = ANY($1::uuid[]) ORDER BY chat_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *PostgresStore) ProfileName(ctx context.Context, profile uuid.UUID) (string, error) {
	var username string
	err := s.db.QueryRow(ctx, `SELECT username FROM users_profiles WHERE id = $1`, profile).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find profile: %w", err)
	}
	return username, nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, profile uuid.UUID, username string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users_profiles (id, username) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
	`, profile, username)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, chatID int64, profile uuid.UUID, active bool) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO telegram_accounts (chat_id, profile_id, active) VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO UPDATE SET profile_id = EXCLUDED.profile_id, active = EXCLUDED.active
	`, chatID, profile, active)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
