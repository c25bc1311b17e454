package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"products-stocks-telegram/internal/database"
	"products-stocks-telegram/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SQLiteStore implements Store on top of SingleWriterDB
type SQLiteStore struct {
	db     *database.SingleWriterDB
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite backed store
func NewSQLiteStore(db *database.SingleWriterDB, logger *zap.Logger) *SQLiteStore {
	return &SQLiteStore{db: db, logger: logger, now: time.Now}
}

func (s *SQLiteStore) Claim(ctx context.Context, requestID, operator uuid.UUID) (int64, error) {
	result, err := s.db.Exec(ctx,
		`UPDATE product_stocks SET fixed_by = ?, fixed_at = ? WHERE id = ? AND fixed_by IS NULL`,
		operator.String(), formatTime(s.now()), requestID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to claim request: %w", err)
	}
	return rowsAffected(result)
}

func (s *SQLiteStore) Release(ctx context.Context, requestID uuid.UUID) (int64, error) {
	result, err := s.db.Exec(ctx,
		`UPDATE product_stocks SET fixed_by = NULL, fixed_at = NULL WHERE id = ?`,
		requestID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release request: %w", err)
	}
	return rowsAffected(result)
}

func (s *SQLiteStore) FindClaimant(ctx context.Context, requestID uuid.UUID) (*domain.Claimant, error) {
	var (
		profile  string
		username sql.NullString
	)
	err := s.db.QueryRow(ctx, `
		SELECT s.fixed_by, p.username
		FROM product_stocks s
		LEFT JOIN users_profiles p ON p.id = s.fixed_by
		WHERE s.id = ? AND s.fixed_by IS NOT NULL
	`, requestID.String()).Scan(&profile, &username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrClaimantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find claimant: %w", err)
	}

	id, err := uuid.Parse(profile)
	if err != nil {
		return nil, fmt.Errorf("invalid claimant id %q: %w", profile, err)
	}
	return &domain.Claimant{ProfileID: id, Username: username.String}, nil
}

func (s *SQLiteStore) ReleaseExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.Exec(ctx, `
		UPDATE product_stocks SET fixed_by = NULL, fixed_at = NULL
		WHERE fixed_by IS NOT NULL AND fixed_at < ? AND status IN (?, ?)
	`, formatTime(olderThan), string(domain.StatusPackage), string(domain.StatusMoving))
	if err != nil {
		return 0, fmt.Errorf("failed to release expired claims: %w", err)
	}
	return rowsAffected(result)
}

const selectRequest = `
	SELECT s.id, s.number, s.status, s.profile_id, s.destination_id, s.fixed_by, s.fixed_at,
	       s.delivery_name, s.comment, s.modified_at,
	       COALESCE(p.username, ''), COALESCE(d.username, '')
	FROM product_stocks s
	LEFT JOIN users_profiles p ON p.id = s.profile_id
	LEFT JOIN users_profiles d ON d.id = s.destination_id
`

func (s *SQLiteStore) NextRequest(ctx context.Context, kind domain.QueueKind, owner, operator uuid.UUID) (*domain.StockRequest, error) {
	row := s.db.QueryRow(ctx, selectRequest+`
		WHERE s.profile_id = ? AND s.status = ? AND (s.fixed_by IS NULL OR s.fixed_by = ?)
		ORDER BY s.modified_at ASC
		LIMIT 1
	`, owner.String(), string(kind.Status()), operator.String())

	request, err := scanSQLiteRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoEligibleRequest
	}
	return request, err
}

func (s *SQLiteStore) FindRequest(ctx context.Context, requestID uuid.UUID) (*domain.StockRequest, error) {
	row := s.db.QueryRow(ctx, selectRequest+` WHERE s.id = ?`, requestID.String())

	request, err := scanSQLiteRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRequestNotFound
	}
	return request, err
}

func scanSQLiteRequest(row *sql.Row) (*domain.StockRequest, error) {
	var (
		r                            domain.StockRequest
		id, status, profile, modTime string
		destination, fixedBy, fixAt  sql.NullString
	)
	err := row.Scan(&id, &r.Number, &status, &profile, &destination, &fixedBy, &fixAt,
		&r.DeliveryName, &r.Comment, &modTime, &r.ProfileName, &r.DestinationName)
	if err != nil {
		return nil, err
	}

	r.Status = domain.Status(status)
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid request id %q: %w", id, err)
	}
	if r.Profile, err = uuid.Parse(profile); err != nil {
		return nil, fmt.Errorf("invalid profile id %q: %w", profile, err)
	}
	if r.Destination, err = parseNullUUID(destination); err != nil {
		return nil, err
	}
	if r.FixedBy, err = parseNullUUID(fixedBy); err != nil {
		return nil, err
	}
	if fixAt.Valid {
		t, err := parseTime(fixAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid fixed_at %q: %w", fixAt.String, err)
		}
		r.FixedAt = &t
	}
	if r.ModifiedAt, err = parseTime(modTime); err != nil {
		return nil, fmt.Errorf("invalid modified_at %q: %w", modTime, err)
	}
	return &r, nil
}

func (s *SQLiteStore) LineItems(ctx context.Context, request *domain.StockRequest) ([]domain.LineItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT l.product_name,
		       l.offer_name, l.offer_value, l.offer_postfix,
		       l.variation_name, l.variation_value, l.variation_postfix,
		       l.modification_name, l.modification_value, l.modification_postfix,
		       l.quantity,
		       COALESCE((
		           SELECT GROUP_CONCAT(t.storage || ': [' || t.total || ']', ', ')
		           FROM product_stock_totals t
		           WHERE t.profile_id = ? AND t.product_id = l.product_id
		             AND t.offer_value = l.offer_value AND t.variation_value = l.variation_value
		             AND t.modification_value = l.modification_value AND t.total > 0
		       ), ''),
		       COALESCE((
		           SELECT SUM(t.total)
		           FROM product_stock_totals t
		           WHERE t.profile_id = ? AND t.product_id = l.product_id
		             AND t.offer_value = l.offer_value AND t.variation_value = l.variation_value
		             AND t.modification_value = l.modification_value AND t.total > 0
		       ), 0)
		FROM product_stock_lines l
		WHERE l.stock_id = ?
		ORDER BY l.position ASC
	`, request.Profile.String(), request.Profile.String(), request.ID.String())
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

func (s *SQLiteStore) Complete(ctx context.Context, kind domain.QueueKind, requestID uuid.UUID) (int64, error) {
	query := `
		UPDATE product_stocks
		SET status = ?, fixed_by = NULL, fixed_at = NULL, modified_at = ?
		WHERE id = ? AND status = ?
	`
	if kind == domain.KindMove {
		// the receiving warehouse becomes the owner
		query = `
			UPDATE product_stocks
			SET status = ?, fixed_by = NULL, fixed_at = NULL, modified_at = ?,
			    profile_id = destination_id, destination_id = profile_id
			WHERE id = ? AND status = ? AND destination_id IS NOT NULL
		`
	}

	result, err := s.db.Exec(ctx, query,
		string(kind.CompletedStatus()), formatTime(s.now()), requestID.String(), string(kind.Status()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to complete request: %w", err)
	}
	return rowsAffected(result)
}

func (s *SQLiteStore) SaveRequest(ctx context.Context, request *domain.StockRequest, lines []LineRecord) (bool, error) {
	saved := false
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var fixedAt interface{}
		if request.FixedAt != nil {
			fixedAt = formatTime(*request.FixedAt)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO product_stocks (id, number, status, profile_id, destination_id, fixed_by, fixed_at, delivery_name, comment, modified_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				number = excluded.number, status = excluded.status, profile_id = excluded.profile_id,
				destination_id = excluded.destination_id,
				fixed_by = CASE WHEN product_stocks.status = excluded.status AND product_stocks.profile_id = excluded.profile_id
					THEN product_stocks.fixed_by END,
				fixed_at = CASE WHEN product_stocks.status = excluded.status AND product_stocks.profile_id = excluded.profile_id
					THEN product_stocks.fixed_at END,
				delivery_name = excluded.delivery_name, comment = excluded.comment, modified_at = excluded.modified_at
			WHERE product_stocks.status IN (?, ?) AND product_stocks.modified_at < excluded.modified_at
		`, request.ID.String(), request.Number, string(request.Status), request.Profile.String(),
			nullUUID(request.Destination), nullUUID(request.FixedBy), fixedAt,
			request.DeliveryName, request.Comment, formatTime(request.ModifiedAt),
			string(domain.StatusPackage), string(domain.StatusMoving),
		)
		if err != nil {
			return fmt.Errorf("failed to save request: %w", err)
		}
		if n, err := rowsAffected(result); err != nil || n == 0 {
			return err
		}
		saved = true

		if _, err := tx.ExecContext(ctx, `DELETE FROM product_stock_lines WHERE stock_id = ?`, request.ID.String()); err != nil {
			return fmt.Errorf("failed to replace line items: %w", err)
		}

		for i, line := range lines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO product_stock_lines (stock_id, position, product_id, product_name,
					offer_name, offer_value, offer_postfix,
					variation_name, variation_value, variation_postfix,
					modification_name, modification_value, modification_postfix, quantity)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, request.ID.String(), i, line.ProductID.String(), line.ProductName,
				line.OfferName, line.OfferValue, line.OfferPostfix,
				line.VariationName, line.VariationValue, line.VariationPostfix,
				line.ModificationName, line.ModificationValue, line.ModificationPostfix, line.Quantity,
			)
			if err != nil {
				return fmt.Errorf("failed to save line item %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return saved, nil
}

func (s *SQLiteStore) SaveStockTotal(ctx context.Context, total StockTotal) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO product_stock_totals (profile_id, product_id, offer_value, variation_value, modification_value, storage, total)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id, product_id, offer_value, variation_value, modification_value, storage)
		DO UPDATE SET total = excluded.total
	`, total.Profile.String(), total.ProductID.String(), total.OfferValue, total.VariationValue,
		total.ModificationValue, total.Storage, total.Total)
	if err != nil {
		return fmt.Errorf("failed to save stock total: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ActiveProfileForChat(ctx context.Context, chatID int64) (uuid.UUID, error) {
	var profile string
	err := s.db.QueryRow(ctx,
		`SELECT profile_id FROM telegram_accounts WHERE chat_id = ? AND active = 1`, chatID,
	).Scan(&profile)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, domain.ErrOperatorUnknown
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to find chat profile: %w", err)
	}
	return uuid.Parse(profile)
}

func (s *SQLiteStore) ChatsForProfiles(ctx context.Context, profiles []uuid.UUID) ([]int64, error) {
	if len(profiles) == 0 {
		return nil, nil
	}

	query := `SELECT chat_id FROM telegram_accounts WHERE active = 1 AND profile_id IN (?` +
		repeatPlaceholder(len(profiles)-1) + `) ORDER BY chat_id`
	args := make([]interface{}, len(profiles))
	for i, p := range profiles {
		args[i] = p.String()
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chatID)
	}
	return chats, rows.Err()
}

func (s *SQLiteStore) ProfileName(ctx context.Context, profile uuid.UUID) (string, error) {
	var username string
	err := s.db.QueryRow(ctx, `SELECT username FROM users_profiles WHERE id = ?`, profile.String()).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find profile: %w", err)
	}
	return username, nil
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, profile uuid.UUID, username string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users_profiles (id, username) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username
	`, profile.String(), username)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveAccount(ctx context.Context, chatID int64, profile uuid.UUID, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO telegram_accounts (chat_id, profile_id, active) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET profile_id = excluded.profile_id, active = excluded.active
	`, chatID, profile.String(), flag)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func repeatPlaceholder(n int) string {
	out := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		out = append(out, ", ?"...)
	}
	return string(out)
}

func parseNullUUID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid %q: %w", s.String, err)
	}
	return &id, nil
}

func nullUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}
