package privmsg

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rbaliyan/privmsg/store"
	"go.opentelemetry.io/otel/attribute"
)

// possibleRecipients resolves who userID may write to: every known user but
// userID and the users blocking it. Once userID granted anyone write
// permission, only those grantees remain. The recipient filter runs last.
func (s *service) possibleRecipients(ctx context.Context, userID string) (ids []string, opErr error) {
	ctx, endSpan := s.otel.startSpan(ctx, "privmsg.possible_recipients",
		attribute.String("user_id", userID),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		s.otel.recordRelation(ctx, time.Since(start), "possible_recipients", opErr)
	}()

	users, err := s.directory.ListUsers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("privmsg: list users: %w", err)
	}
	blockers, err := s.store.Blockers(ctx, userID)
	if err != nil {
		return nil, storageError("list blockers", err)
	}
	grantees, err := s.store.Grantees(ctx, userID)
	if err != nil {
		return nil, storageError("list grantees", err)
	}

	blocked := make(map[string]bool, len(blockers))
	for _, id := range blockers {
		blocked[id] = true
	}
	var granted map[string]bool
	if len(grantees) > 0 {
		granted = make(map[string]bool, len(grantees))
		for _, id := range grantees {
			granted[id] = true
		}
	}

	candidates := make([]string, 0, len(users))
	for _, id := range users {
		if id == userID || blocked[id] {
			continue
		}
		if granted != nil && !granted[id] {
			continue
		}
		candidates = append(candidates, id)
	}

	if s.opts.recipientFilter != nil {
		if candidates, err = s.opts.recipientFilter(ctx, userID, candidates); err != nil {
			return nil, fmt.Errorf("privmsg: recipient filter: %w", err)
		}
	}
	slices.Sort(candidates)
	return slices.Compact(candidates), nil
}

// PossibleRecipients returns the users the user may currently address.
func (m *userMailbox) PossibleRecipients(ctx context.Context) ([]string, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	return m.service.possibleRecipients(ctx, m.userID)
}

// SetIgnoreList replaces the user's ignore list with blockedIDs.
// An empty list unblocks everyone. The user cannot block themselves.
func (m *userMailbox) SetIgnoreList(ctx context.Context, blockedIDs ...string) (opErr error) {
	if err := m.checkAccess(); err != nil {
		return err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.set_ignore_list",
		attribute.String("user_id", m.userID),
		attribute.Int("count", len(blockedIDs)),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		m.service.otel.recordRelation(ctx, time.Since(start), "set_ignore_list", opErr)
	}()

	ids := make([]string, 0, len(blockedIDs))
	for _, id := range dedupe(blockedIDs) {
		if !isValidUserID(id) {
			return &ValidationError{Field: "blocked_ids", Message: fmt.Sprintf("invalid user %q", id), Err: ErrInvalidUserID}
		}
		if id != m.userID {
			ids = append(ids, id)
		}
	}

	if err := m.service.store.ReplaceIgnoreList(ctx, m.userID, ids); err != nil {
		return storageError("set ignore list", err)
	}
	m.service.logger.Debug("ignore list replaced", "user_id", m.userID, "count", len(ids))
	return nil
}

// IgnoreList returns the users the user blocks.
func (m *userMailbox) IgnoreList(ctx context.Context) ([]IgnoreEntry, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	entries, err := m.service.store.IgnoreList(ctx, m.userID)
	if err != nil {
		return nil, storageError("get ignore list", err)
	}
	return entries, nil
}

// AddContact grants write permission between the user and userID in both
// directions. Granting twice only refreshes the grants.
func (m *userMailbox) AddContact(ctx context.Context, userID string) (opErr error) {
	if err := m.checkAccess(); err != nil {
		return err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.add_contact",
		attribute.String("user_id", m.userID),
		attribute.String("contact_id", userID),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		m.service.otel.recordRelation(ctx, time.Since(start), "add_contact", opErr)
	}()

	if !isValidUserID(userID) {
		return &ValidationError{Field: "user_id", Message: fmt.Sprintf("invalid user %q", userID), Err: ErrInvalidUserID}
	}
	if userID == m.userID {
		return &ValidationError{Field: "user_id", Message: "cannot add yourself", Err: ErrForbidden}
	}
	ok, err := m.service.directory.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("privmsg: look up user %s: %w", userID, err)
	}
	if !ok {
		return &ValidationError{Field: "user_id", Message: fmt.Sprintf("unknown user %q", userID), Err: ErrUnknownRecipient}
	}

	if err := m.service.store.UpsertGrants(ctx, store.GrantPair(m.userID, userID)...); err != nil {
		return storageError("add contact", err)
	}
	return nil
}
