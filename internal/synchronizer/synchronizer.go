package synchronizer

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"inbox-service/internal/models"
	"inbox-service/internal/observability"
	"inbox-service/internal/repositories"
)

const localIDPrefix = "local-"

// SnapshotCache keeps the last successfully derived conversation list per viewer.
type SnapshotCache interface {
	Load(viewerID string) ([]models.Conversation, error)
	Save(viewerID string, convs []models.Conversation) error
}

// Deps are the collaborators shared by every Synchronizer.
type Deps struct {
	Messages repositories.MessageRepository
	Users    repositories.UserRepository
	Cache    SnapshotCache
	Now      func() time.Time
	NewID    func() string
}

// Synchronizer reconciles the message stream of one viewer into conversations.
// It is safe for concurrent use; store calls happen outside the lock.
type Synchronizer struct {
	viewerID string
	messages repositories.MessageRepository
	users    repositories.UserRepository
	cache    SnapshotCache
	now      func() time.Time
	newID    func() string
	tracer   trace.Tracer

	mu        sync.RWMutex
	confirmed map[string]models.Message
	outgoing  map[string]models.Message
	shells    map[string]struct{}
	lastGood  []models.Conversation
	loaded    bool
}

// New builds a Synchronizer for viewerID, seeded from the snapshot cache.
func New(viewerID string, deps Deps) *Synchronizer {
	s := &Synchronizer{
		viewerID:  viewerID,
		messages:  deps.Messages,
		users:     deps.Users,
		cache:     deps.Cache,
		now:       deps.Now,
		newID:     deps.NewID,
		tracer:    otel.Tracer("inbox-service/synchronizer"),
		confirmed: make(map[string]models.Message),
		outgoing:  make(map[string]models.Message),
		shells:    make(map[string]struct{}),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.cache != nil && viewerID != "" {
		convs, err := s.cache.Load(viewerID)
		if err != nil {
			log.Printf("snapshot cache load failed user_id=%s err=%v", viewerID, err)
		}
		s.lastGood = convs
	}
	return s
}

// ViewerID is the user this synchronizer acts for.
func (s *Synchronizer) ViewerID() string {
	return s.viewerID
}

// Ingest merges a batch of messages and returns the updated conversation list.
// Redelivered messages keep their first timestamp and their read flag never
// goes back to false, so the result does not depend on delivery order or count.
func (s *Synchronizer) Ingest(msgs []models.Message) []models.Conversation {
	s.mu.Lock()
	for _, m := range msgs {
		s.mergeLocked(m)
	}
	s.loaded = true
	convs := s.conversationsLocked()
	s.lastGood = convs
	s.mu.Unlock()

	observability.IncSyncIngest(len(msgs))
	s.saveSnapshot(convs)
	return cloneConversations(convs)
}

func (s *Synchronizer) mergeLocked(m models.Message) {
	if m.ID == "" || !m.Involves(s.viewerID) || m.SenderID == m.ReceiverID {
		return
	}
	if err := models.ValidateParticipants(m.Participants, m.SenderID, m.ReceiverID); err != nil {
		log.Printf("synchronizer skipping message id=%s user_id=%s err=%v", m.ID, s.viewerID, err)
		return
	}
	m.State = models.StateConfirmed
	if existing, ok := s.confirmed[m.ID]; ok {
		existing.Read = existing.Read || m.Read
		s.confirmed[m.ID] = existing
		return
	}
	s.confirmed[m.ID] = m
	delete(s.shells, m.OtherParticipant(s.viewerID))
}

func (s *Synchronizer) conversationsLocked() []models.Conversation {
	all := make([]models.Message, 0, len(s.confirmed)+len(s.outgoing))
	for _, m := range s.confirmed {
		all = append(all, m)
	}
	for _, m := range s.outgoing {
		all = append(all, m)
	}
	convs := BuildConversations(s.viewerID, all)

	if len(s.shells) > 0 {
		known := make(map[string]struct{}, len(convs))
		for _, c := range convs {
			known[c.ID] = struct{}{}
		}
		for other := range s.shells {
			if _, ok := known[other]; !ok {
				convs = append(convs, shellConversation(s.viewerID, other))
			}
		}
		sortConversations(convs)
	}
	return convs
}

// Conversations returns the current local view, falling back to the cached
// snapshot until the first successful load.
func (s *Synchronizer) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return s.withLastGoodLocked()
	}
	return s.conversationsLocked()
}

// withLastGoodLocked overlays local conversations (pending, failed, shells) on
// the cached snapshot; a local entry replaces the cached one with the same id.
func (s *Synchronizer) withLastGoodLocked() []models.Conversation {
	if len(s.outgoing) == 0 && len(s.shells) == 0 {
		return cloneConversations(s.lastGood)
	}
	local := s.conversationsLocked()
	seen := make(map[string]struct{}, len(local))
	for _, c := range local {
		seen[c.ID] = struct{}{}
	}
	for _, c := range s.lastGood {
		if _, ok := seen[c.ID]; !ok {
			local = append(local, c)
		}
	}
	sortConversations(local)
	return local
}

// HasOutgoing reports whether pending or failed local messages exist.
func (s *Synchronizer) HasOutgoing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outgoing) > 0
}

// Thread returns the messages exchanged with otherID, oldest first, including
// pending and failed local messages.
func (s *Synchronizer) Thread(otherID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var msgs []models.Message
	for _, set := range []map[string]models.Message{s.confirmed, s.outgoing} {
		for _, m := range set {
			if m.OtherParticipant(s.viewerID) == otherID {
				msgs = append(msgs, m)
			}
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[j].NewerThan(msgs[i])
	})
	return msgs
}

// Refresh loads every message visible to the viewer and ingests it. When the
// store cannot be reached it returns the last known-good list with the error.
func (s *Synchronizer) Refresh(ctx context.Context) ([]models.Conversation, error) {
	const op = "refresh"
	if err := s.requireViewer(op); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, op)
	msgs, err := s.messages.ListMessagesForUser(ctx, s.viewerID)
	if err != nil {
		err = classify(op, err)
		endSpan(span, err)
		return s.Conversations(), err
	}
	endSpan(span, nil)
	return s.Ingest(msgs), nil
}

// LoadThread refreshes the messages exchanged with otherID from the store.
func (s *Synchronizer) LoadThread(ctx context.Context, otherID string) ([]models.Message, error) {
	const op = "load thread"
	if err := s.requireViewer(op); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, op)
	msgs, err := s.messages.ListMessagesBetween(ctx, s.viewerID, otherID)
	if err != nil {
		err = classify(op, err)
		endSpan(span, err)
		return s.Thread(otherID), err
	}
	endSpan(span, nil)
	s.Ingest(msgs)
	return s.Thread(otherID), nil
}

// StartConversation returns the conversation with otherID, creating an empty
// shell only when none is known yet.
func (s *Synchronizer) StartConversation(ctx context.Context, otherID string) (models.Conversation, error) {
	const op = "start conversation"
	if err := s.requireViewer(op); err != nil {
		return models.Conversation{}, err
	}
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return models.Conversation{}, newError(KindValidation, op, ErrMissingUser)
	}
	if otherID == s.viewerID {
		return models.Conversation{}, newError(KindValidation, op, ErrSelfConversation)
	}

	s.mu.RLock()
	existing, ok := s.findLocked(otherID)
	s.mu.RUnlock()
	if ok {
		return existing, nil
	}

	if s.users != nil {
		if _, err := s.users.GetUser(ctx, otherID); err != nil {
			return models.Conversation{}, classify(op, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// a message may have arrived during the directory lookup
	if existing, ok := s.findLocked(otherID); ok {
		return existing, nil
	}
	s.shells[otherID] = struct{}{}
	return shellConversation(s.viewerID, otherID), nil
}

func (s *Synchronizer) findLocked(otherID string) (models.Conversation, bool) {
	for _, c := range s.conversationsLocked() {
		if c.ID == otherID {
			return c, true
		}
	}
	if !s.loaded {
		for _, c := range s.lastGood {
			if c.ID == otherID {
				return c, true
			}
		}
	}
	return models.Conversation{}, false
}

// SendMessage sends a plain text message to otherID. Whitespace-only text is
// rejected before anything is written.
func (s *Synchronizer) SendMessage(ctx context.Context, otherID string, text string) (models.Message, error) {
	const op = "send message"
	if err := s.requireViewer(op); err != nil {
		return models.Message{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, newError(KindValidation, op, models.ErrEmptyText)
	}
	return s.send(ctx, op, models.NewMessage{
		SenderID:   s.viewerID,
		ReceiverID: otherID,
		Text:       text,
		Kind:       models.KindText,
	})
}

// SendSharedPost shares a post with otherID, with optional accompanying text.
func (s *Synchronizer) SendSharedPost(ctx context.Context, otherID string, post models.SharedPost, text string) (models.Message, error) {
	const op = "send shared post"
	if err := s.requireViewer(op); err != nil {
		return models.Message{}, err
	}
	return s.send(ctx, op, models.NewMessage{
		SenderID:   s.viewerID,
		ReceiverID: otherID,
		Text:       strings.TrimSpace(text),
		Kind:       models.KindSharedPost,
		Post:       &post,
	})
}

// CheckRecipient reports whether otherID can receive a message from the viewer.
func (s *Synchronizer) CheckRecipient(otherID string) error {
	const op = "check recipient"
	if err := s.requireViewer(op); err != nil {
		return err
	}
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return newError(KindValidation, op, ErrMissingUser)
	}
	if otherID == s.viewerID {
		return newError(KindValidation, op, models.ErrSelfMessage)
	}
	return nil
}

func (s *Synchronizer) send(ctx context.Context, op string, draft models.NewMessage) (models.Message, error) {
	if err := draft.Validate(); err != nil {
		return models.Message{}, classify(op, err)
	}

	localID := localIDPrefix + s.newID()
	s.mu.Lock()
	s.outgoing[localID] = models.Message{
		ID:           localID,
		Text:         draft.Text,
		SenderID:     draft.SenderID,
		ReceiverID:   draft.ReceiverID,
		Participants: draft.Participants(),
		Kind:         draft.Kind,
		Post:         draft.Post,
		CreatedAt:    s.now(),
		State:        models.StatePending,
	}
	delete(s.shells, draft.ReceiverID)
	s.mu.Unlock()

	return s.deliver(ctx, op, localID, draft)
}

// deliver writes a pending message and settles its local state.
func (s *Synchronizer) deliver(ctx context.Context, op string, localID string, draft models.NewMessage) (models.Message, error) {
	ctx, span := s.startSpan(ctx, op)
	confirmed, err := s.messages.CreateMessage(ctx, draft)
	if err != nil {
		err = classify(op, err)
		endSpan(span, err)

		s.mu.Lock()
		failed := s.outgoing[localID]
		failed.State = models.StateFailed
		s.outgoing[localID] = failed
		s.mu.Unlock()

		observability.IncSyncSend(string(models.StateFailed))
		return failed, err
	}
	endSpan(span, nil)

	s.mu.Lock()
	delete(s.outgoing, localID)
	s.mu.Unlock()
	s.Ingest([]models.Message{confirmed})

	observability.IncSyncSend(string(models.StateConfirmed))
	confirmed.State = models.StateConfirmed
	return confirmed, nil
}

// RetryMessage resends a failed message. Failed messages are never retried
// automatically.
func (s *Synchronizer) RetryMessage(ctx context.Context, localID string) (models.Message, error) {
	const op = "retry message"
	if err := s.requireViewer(op); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	m, ok := s.outgoing[localID]
	if !ok {
		s.mu.Unlock()
		return models.Message{}, newError(KindValidation, op, ErrUnknownMessage)
	}
	if m.State != models.StateFailed {
		s.mu.Unlock()
		return models.Message{}, newError(KindValidation, op, ErrNotFailed)
	}
	m.State = models.StatePending
	s.outgoing[localID] = m
	s.mu.Unlock()

	return s.deliver(ctx, op, localID, models.NewMessage{
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Kind:       m.Kind,
		Post:       m.Post,
	})
}

// DiscardMessage drops a failed message at the user's request.
func (s *Synchronizer) DiscardMessage(localID string) error {
	const op = "discard message"
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outgoing[localID]
	if !ok {
		return newError(KindValidation, op, ErrUnknownMessage)
	}
	if m.State != models.StateFailed {
		return newError(KindValidation, op, ErrNotFailed)
	}
	delete(s.outgoing, localID)
	return nil
}

// MarkConversationRead marks the unread inbound messages of the conversation
// with otherID as read. The set is computed from a store snapshot taken right
// before the batch; messages that arrive later stay unread.
func (s *Synchronizer) MarkConversationRead(ctx context.Context, otherID string) (int, error) {
	const op = "mark conversation read"
	if err := s.requireViewer(op); err != nil {
		return 0, err
	}
	ctx, span := s.startSpan(ctx, op)

	snapshot, err := s.messages.ListMessagesBetween(ctx, s.viewerID, otherID)
	if err != nil {
		err = classify(op, err)
		endSpan(span, err)
		return 0, err
	}

	var ids []string
	for _, m := range snapshot {
		if m.SenderID == otherID && m.ReceiverID == s.viewerID && !m.Read {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		endSpan(span, nil)
		s.Ingest(snapshot)
		return 0, nil
	}

	marked, err := s.messages.MarkRead(ctx, s.viewerID, ids)
	if err != nil {
		err = classify(op, err)
		endSpan(span, err)
		s.Ingest(snapshot)
		return 0, err
	}
	span.SetAttributes(attribute.Int("messages.marked", marked))
	endSpan(span, nil)

	s.mu.Lock()
	for _, m := range snapshot {
		s.mergeLocked(m)
	}
	for _, id := range ids {
		if m, ok := s.confirmed[id]; ok {
			m.Read = true
			s.confirmed[id] = m
		}
	}
	s.loaded = true
	convs := s.conversationsLocked()
	s.lastGood = convs
	s.mu.Unlock()

	observability.AddSyncMarkedRead(marked)
	s.saveSnapshot(convs)
	return marked, nil
}

// SearchUsers matches query case-insensitively against the display names of
// the users the viewer follows. An empty query returns every candidate.
func (s *Synchronizer) SearchUsers(ctx context.Context, query string) ([]models.UserProfile, error) {
	const op = "search users"
	if err := s.requireViewer(op); err != nil {
		return nil, err
	}
	candidates, err := s.users.ListFollowed(ctx, s.viewerID)
	if err != nil {
		return nil, classify(op, err)
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	matches := make([]models.UserProfile, 0, len(candidates))
	for _, u := range candidates {
		if u.ID == s.viewerID {
			continue
		}
		if needle == "" || strings.Contains(strings.ToLower(u.Name()), needle) {
			matches = append(matches, u)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return strings.ToLower(matches[i].Name()) < strings.ToLower(matches[j].Name())
	})
	return matches, nil
}

func (s *Synchronizer) requireViewer(op string) error {
	if s.viewerID == "" {
		return newError(KindUnauthorized, op, ErrNotSignedIn)
	}
	return nil
}

func (s *Synchronizer) saveSnapshot(convs []models.Conversation) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(s.viewerID, convs); err != nil {
		log.Printf("snapshot cache save failed user_id=%s err=%v", s.viewerID, err)
	}
}

func (s *Synchronizer) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "synchronizer."+strings.ReplaceAll(op, " ", "_"),
		trace.WithAttributes(attribute.String("user.id", s.viewerID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func cloneConversations(convs []models.Conversation) []models.Conversation {
	if convs == nil {
		return nil
	}
	out := make([]models.Conversation, len(convs))
	copy(out, convs)
	return out
}
