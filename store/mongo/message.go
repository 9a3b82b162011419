package mongo

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/rbaliyan/privmsg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// messageDoc is the BSON shape of a message record. Params are kept as
// their JSON encoding so they round-trip unmodified.
type messageDoc struct {
	ID          int64     `bson:"_id"`
	Hash        string    `bson:"hash"`
	SenderID    string    `bson:"sender_id,omitempty"`
	RecipientID string    `bson:"recipient_id,omitempty"`
	Status      int       `bson:"status"`
	Title       string    `bson:"title"`
	Body        string    `bson:"body"`
	Context     string    `bson:"context,omitempty"`
	Params      string    `bson:"params,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

func newMessageDoc(id int64, data store.MessageData) (*messageDoc, error) {
	params, err := encodeParams(data.Params)
	if err != nil {
		return nil, err
	}
	createdAt := data.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &messageDoc{
		ID:          id,
		Hash:        data.Hash,
		SenderID:    data.SenderID,
		RecipientID: data.RecipientID,
		Status:      int(data.Status),
		Title:       data.Title,
		Body:        data.Body,
		Context:     data.Context,
		Params:      params,
		CreatedAt:   createdAt,
	}, nil
}

func encodeParams(params map[string]any) (string, error) {
	if params == nil {
		return "", nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(b), nil
}

func (d *messageDoc) toMessage() (*store.Message, error) {
	m := &store.Message{
		ID:          d.ID,
		Hash:        d.Hash,
		SenderID:    d.SenderID,
		RecipientID: d.RecipientID,
		Status:      store.Status(d.Status),
		Title:       d.Title,
		Body:        d.Body,
		Context:     d.Context,
		CreatedAt:   d.CreatedAt.UTC(),
	}
	if d.Params != "" {
		if err := json.Unmarshal([]byte(d.Params), &m.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	return m, nil
}

func statusCodes(statuses []store.Status) bson.A {
	out := make(bson.A, len(statuses))
	for i, s := range statuses {
		out[i] = int(s)
	}
	return out
}

// containsRegex builds a case-insensitive literal substring match.
func containsRegex(v string) bson.Regex {
	return bson.Regex{Pattern: regexp.QuoteMeta(v), Options: "i"}
}

// buildFilter converts a query into a BSON filter.
func buildFilter(q store.Query) bson.D {
	var f bson.D
	if q.SenderID != "" {
		f = append(f, bson.E{Key: "sender_id", Value: q.SenderID})
		if q.CorrespondentID != "" {
			f = append(f, bson.E{Key: "recipient_id", Value: q.CorrespondentID})
		}
	} else {
		f = append(f, bson.E{Key: "recipient_id", Value: q.RecipientID})
		if q.CorrespondentID != "" {
			f = append(f, bson.E{Key: "sender_id", Value: q.CorrespondentID})
		}
	}
	f = append(f, bson.E{Key: "status", Value: bson.M{"$in": statusCodes(q.Statuses)}})
	if q.TitleContains != "" {
		f = append(f, bson.E{Key: "title", Value: containsRegex(q.TitleContains)})
	}
	if q.BodyContains != "" {
		f = append(f, bson.E{Key: "body", Value: containsRegex(q.BodyContains)})
	}
	if q.HashContains != "" {
		f = append(f, bson.E{Key: "hash", Value: containsRegex(q.HashContains)})
	}
	return f
}
