package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/rbaliyan/privmsg/store"
)

// GetByHash retrieves a record by hash.
func (s *Store) GetByHash(ctx context.Context, hash string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE hash = $1`, messageColumns, s.opts.table)
	var row messageRow
	if err := s.db.GetContext(ctx, &row, query, hash); err != nil {
		if err = mapError(err); store.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return row.toMessage()
}

// Find returns a page of matching records, newest first.
func (s *Store) Find(ctx context.Context, q store.Query) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	where, args := buildWhere(q)

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.opts.table, where)
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY created_at DESC, id DESC`,
		messageColumns, s.opts.table, where)
	if q.Limit > 0 {
		// fetch one extra row to detect another page
		args = append(args, q.Limit+1)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	hasMore := q.Limit > 0 && len(rows) > q.Limit
	if hasMore {
		rows = rows[:q.Limit]
	}
	messages, err := rowsToMessages(rows)
	if err != nil {
		return nil, err
	}

	return &store.MessageList{
		Messages: messages,
		Total:    total,
		HasMore:  hasMore,
	}, nil
}

// Count returns the number of matching records.
func (s *Store) Count(ctx context.Context, q store.Query) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	where, args := buildWhere(q)
	var total int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.opts.table, where)
	if err := s.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return total, nil
}

// FindSingleton returns the sender's record in one of statuses.
func (s *Store) FindSingleton(ctx context.Context, senderID string, statuses []store.Status) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE sender_id = $1 AND status = ANY($2) ORDER BY id DESC LIMIT 1`,
		messageColumns, s.opts.table)
	var row messageRow
	if err := s.db.GetContext(ctx, &row, query, senderID, pq.Array(statusCodes(statuses))); err != nil {
		if err = mapError(err); store.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("find singleton: %w", err)
	}
	return row.toMessage()
}

// Correspondents returns distinct counterparts of userID's conversational messages.
func (s *Store) Correspondents(ctx context.Context, userID string, sent bool) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	self, other := "recipient_id", "sender_id"
	if sent {
		self, other = "sender_id", "recipient_id"
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT %[2]s FROM %[3]s
		WHERE %[1]s = $1 AND %[2]s IS NOT NULL AND status = ANY($2)
		ORDER BY %[2]s
	`, self, other, s.opts.table)

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, userID, pq.Array(statusCodes(store.SentStatuses))); err != nil {
		return nil, fmt.Errorf("query correspondents: %w", err)
	}
	return ids, nil
}
