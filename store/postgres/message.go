package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rbaliyan/privmsg/store"
)

// messageColumns is the select list matching messageRow.
const messageColumns = `id, hash, sender_id, recipient_id, status, title, body, context, params, created_at`

// messageRow is the sqlx scan target for the messages table.
type messageRow struct {
	ID          int64          `db:"id"`
	Hash        string         `db:"hash"`
	SenderID    sql.NullString `db:"sender_id"`
	RecipientID sql.NullString `db:"recipient_id"`
	Status      int            `db:"status"`
	Title       string         `db:"title"`
	Body        string         `db:"body"`
	Context     string         `db:"context"`
	Params      []byte         `db:"params"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *messageRow) toMessage() (*store.Message, error) {
	m := &store.Message{
		ID:          r.ID,
		Hash:        r.Hash,
		SenderID:    r.SenderID.String,
		RecipientID: r.RecipientID.String,
		Status:      store.Status(r.Status),
		Title:       r.Title,
		Body:        r.Body,
		Context:     r.Context,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if len(r.Params) > 0 && string(r.Params) != "null" {
		if err := json.Unmarshal(r.Params, &m.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	return m, nil
}

func rowsToMessages(rows []messageRow) ([]*store.Message, error) {
	out := make([]*store.Message, 0, len(rows))
	for i := range rows {
		m, err := rows[i].toMessage()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// nullable maps the empty string to SQL NULL.
func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// insertArgs returns the positional arguments for insertSQL.
func insertArgs(data store.MessageData) ([]any, error) {
	var params any
	if data.Params != nil {
		b, err := json.Marshal(data.Params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		params = string(b)
	}
	createdAt := data.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return []any{
		data.Hash, nullable(data.SenderID), nullable(data.RecipientID), int(data.Status),
		data.Title, data.Body, data.Context, params, createdAt,
	}, nil
}

// insertSQL returns the INSERT statement for one message row.
func insertSQL(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (hash, sender_id, recipient_id, status, title, body, context, params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s
	`, table, messageColumns)
}

// statusCodes converts statuses to the integer array bound via pq.Array.
func statusCodes(statuses []store.Status) []int64 {
	out := make([]int64, len(statuses))
	for i, s := range statuses {
		out[i] = int64(s)
	}
	return out
}

// singletonPredicate renders the partial-index predicate for a singleton
// status set. The same text is used in CREATE INDEX and ON CONFLICT so
// PostgreSQL can infer the arbiter index.
func singletonPredicate(statuses []store.Status) string {
	codes := statusCodes(statuses)
	slices.Sort(codes)
	if len(codes) == 1 {
		return fmt.Sprintf("status = %d", codes[0])
	}
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprint(c)
	}
	return "status IN (" + strings.Join(parts, ", ") + ")"
}

// isSingletonSet reports whether statuses is one of the indexed singleton sets.
func isSingletonSet(statuses []store.Status) bool {
	p := singletonPredicate(statuses)
	return p == singletonPredicate(store.SignatureStatuses) || p == singletonPredicate(store.OutOfOfficeStatuses)
}

// likePattern escapes LIKE metacharacters and wraps v for a substring match.
func likePattern(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(v) + "%"
}

// buildWhere renders the WHERE clause and arguments for q.
// Placeholders start at $1.
func buildWhere(q store.Query) (string, []any) {
	var conds []string
	var args []any
	add := func(format string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if q.SenderID != "" {
		add("sender_id = $%d", q.SenderID)
		if q.CorrespondentID != "" {
			add("recipient_id = $%d", q.CorrespondentID)
		}
	} else {
		add("recipient_id = $%d", q.RecipientID)
		if q.CorrespondentID != "" {
			add("sender_id = $%d", q.CorrespondentID)
		}
	}
	add("status = ANY($%d)", pq.Array(statusCodes(q.Statuses)))
	if q.TitleContains != "" {
		add("title ILIKE $%d", likePattern(q.TitleContains))
	}
	if q.BodyContains != "" {
		add("body ILIKE $%d", likePattern(q.BodyContains))
	}
	if q.HashContains != "" {
		add("hash ILIKE $%d", likePattern(q.HashContains))
	}
	return strings.Join(conds, " AND "), args
}
