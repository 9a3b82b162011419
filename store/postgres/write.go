package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/privmsg/store"
)

// Deliver performs a send in a single transaction.
//
// The draft is consumed with a conditional DELETE before the new rows are
// inserted. Two transactions racing on the same draft serialize on its row
// lock; the loser deletes nothing and rolls back with store.ErrConflict.
func (s *Store) Deliver(ctx context.Context, d store.Delivery) (*store.DeliveryResult, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if d.Empty() {
		return nil, store.ErrEmptyDelivery
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", store.ErrTransactionFailed, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if ref := d.ConsumeDraft; ref != nil {
		query := fmt.Sprintf(`DELETE FROM %s WHERE hash = $1 AND sender_id = $2 AND status = $3`, s.opts.table)
		res, err := tx.ExecContext(ctx, query, ref.Hash, ref.SenderID, int(store.StatusDraft))
		if err != nil {
			return nil, fmt.Errorf("consume draft: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return nil, store.ErrConflict
		}
	}

	result := &store.DeliveryResult{Messages: make([]*store.Message, 0, len(d.Messages))}
	for _, data := range d.Messages {
		m, err := s.insert(ctx, tx, data)
		if err != nil {
			return nil, err
		}
		result.Messages = append(result.Messages, m)
	}

	if err := s.upsertGrants(ctx, tx, d.Grants); err != nil {
		return nil, err
	}

	if ref := d.Answer; ref != nil {
		query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE hash = $2 AND recipient_id = $3 AND status = $4`, s.opts.table)
		res, err := tx.ExecContext(ctx, query,
			int(store.StatusAnswered), ref.Hash, ref.RecipientID, int(store.StatusRead))
		if err != nil {
			return nil, fmt.Errorf("mark answered: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		result.Answered = n > 0
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", store.ErrTransactionFailed, err)
	}
	committed = true
	return result, nil
}

// insert writes one message row using q (the db or a transaction).
func (s *Store) insert(ctx context.Context, q sqlx.QueryerContext, data store.MessageData) (*store.Message, error) {
	args, err := insertArgs(data)
	if err != nil {
		return nil, err
	}
	var row messageRow
	if err := sqlx.GetContext(ctx, q, &row, insertSQL(s.opts.table), args...); err != nil {
		return nil, fmt.Errorf("insert message: %w", mapError(err))
	}
	return row.toMessage()
}

// CreateMessage inserts a single record.
func (s *Store) CreateMessage(ctx context.Context, data store.MessageData) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	return s.insert(ctx, s.db, data)
}

// UpsertDraft inserts or updates the sender's draft. The update is guarded
// in the ON CONFLICT clause so a hash owned by another sender, or by a
// non-draft record, returns no row.
func (s *Store) UpsertDraft(ctx context.Context, data store.MessageData) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if data.Hash == "" {
		return nil, store.ErrInvalidID
	}
	data.Status = store.StatusDraft

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	args, err := insertArgs(data)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s AS m (hash, sender_id, recipient_id, status, title, body, context, params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (hash) DO UPDATE SET
			recipient_id = EXCLUDED.recipient_id,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			context = EXCLUDED.context,
			params = EXCLUDED.params
		WHERE m.sender_id = EXCLUDED.sender_id AND m.status = EXCLUDED.status
		RETURNING %s
	`, s.opts.table, messageColumns)

	var row messageRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if err = mapError(err); store.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("upsert draft: %w", err)
	}
	return row.toMessage()
}

// UpsertSingleton inserts or replaces the sender's singleton record,
// arbitrated by the partial unique index for the status set.
func (s *Store) UpsertSingleton(ctx context.Context, data store.MessageData, statuses []store.Status) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if !isSingletonSet(statuses) || !containsStatus(statuses, data.Status) {
		return nil, store.ErrFilterInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	args, err := insertArgs(data)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (hash, sender_id, recipient_id, status, title, body, context, params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (sender_id) WHERE %s DO UPDATE SET
			status = EXCLUDED.status,
			recipient_id = EXCLUDED.recipient_id,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			context = EXCLUDED.context,
			params = EXCLUDED.params
		RETURNING %s
	`, s.opts.table, singletonPredicate(statuses), messageColumns)

	var row messageRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("upsert singleton: %w", mapError(err))
	}
	return row.toMessage()
}

// DeleteSingleton removes the sender's singleton record.
func (s *Store) DeleteSingleton(ctx context.Context, senderID string, statuses []store.Status) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE sender_id = $1 AND status = ANY($2)`, s.opts.table)
	return s.execAffected(ctx, "delete singleton", query, senderID, pq.Array(statusCodes(statuses)))
}

// UpdateStatus applies a conditional transition.
func (s *Store) UpdateStatus(ctx context.Context, u store.StatusUpdate) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE hash = $2 AND status = ANY($3)`, s.opts.table)
	args := []any{int(u.To), u.Hash, pq.Array(statusCodes(u.From))}
	if u.RecipientID != "" {
		query += " AND recipient_id = $4"
		args = append(args, u.RecipientID)
	}
	return s.execAffected(ctx, "update status", query, args...)
}

// HardDelete removes the sender's record with the given hash and status.
func (s *Store) HardDelete(ctx context.Context, hash, senderID string, status store.Status) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE hash = $1 AND sender_id = $2 AND status = $3`, s.opts.table)
	return s.execAffected(ctx, "hard delete", query, hash, senderID, int(status))
}

// MarkAllRead moves all Unread records for recipientID to Read.
func (s *Store) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE recipient_id = $2 AND status = $3`, s.opts.table)
	res, err := s.db.ExecContext(ctx, query, int(store.StatusRead), recipientID, int(store.StatusUnread))
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) execAffected(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func containsStatus(statuses []store.Status, s store.Status) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}
