package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgresSubscriberRepo はPostgreSQLを使用したTelegram購読者リポジトリ。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

// List は全購読者を登録順に返す。
func (r *PostgresSubscriberRepo) List(ctx context.Context) ([]*model.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chat_id, username, first_name, last_name
		 FROM telegram_subscribers
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscribers: %w", err)
	}

	return subs, nil
}

// FindByChatID はチャットIDで購読者を取得する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) FindByChatID(ctx context.Context, chatID string) (*model.Subscriber, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, chat_id, username, first_name, last_name
		 FROM telegram_subscribers WHERE chat_id = $1`,
		chatID,
	)
	sub, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Create は購読者を登録する。
func (r *PostgresSubscriberRepo) Create(ctx context.Context, sub *model.Subscriber) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO telegram_subscribers (chat_id, username, first_name, last_name)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		sub.ChatID, nullString(sub.Username), nullString(sub.FirstName), nullString(sub.LastName),
	).Scan(&sub.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert subscriber: %w", err)
	}
	return nil
}

// DeleteByChatID はチャットIDの購読者を削除する。
func (r *PostgresSubscriberRepo) DeleteByChatID(ctx context.Context, chatID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM telegram_subscribers WHERE chat_id = $1`,
		chatID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete subscriber: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(s rowScanner) (*model.Subscriber, error) {
	sub := &model.Subscriber{}
	var username, firstName, lastName sql.NullString
	if err := s.Scan(&sub.ID, &sub.ChatID, &username, &firstName, &lastName); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan subscriber: %w", err)
	}
	sub.Username = username.String
	sub.FirstName = firstName.String
	sub.LastName = lastName.String
	return sub, nil
}

// nullString は空文字列をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)
