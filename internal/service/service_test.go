package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"carelink/internal/domain"
	"carelink/internal/observability/logging"
	"carelink/internal/realtime"
	"carelink/internal/realtime/realtimetest"
	"carelink/internal/security"
	"carelink/internal/service"
	"carelink/internal/store/sqlite"
)

type env struct {
	hub           *realtime.Hub
	conversations *service.ConversationService
	messages      *service.MessageService
	notifier      *service.NotificationService
	calls         *service.CallService
	convRepo      domain.ConversationRepository
	msgRepo       domain.MessageRepository
}

type envOption func(*envConfig)

type envConfig struct {
	msgRepo     domain.MessageRepository
	convRepo    domain.ConversationRepository
	ringTimeout time.Duration
}

func withMessageRepo(r domain.MessageRepository) envOption {
	return func(c *envConfig) { c.msgRepo = r }
}

func withConversationRepo(r domain.ConversationRepository) envOption {
	return func(c *envConfig) { c.convRepo = r }
}

func withRingTimeout(d time.Duration) envOption {
	return func(c *envConfig) { c.ringTimeout = d }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(context.Background(), db))

	cfg := envConfig{
		convRepo: sqlite.NewConversationRepo(db),
		msgRepo:  sqlite.NewMessageRepo(db),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	enc, err := security.NewEncryptor([]byte("test-encryption-key"), nil)
	require.NoError(t, err)

	log := logging.Discard()
	hub := realtime.NewHub(log)
	conversations := service.NewConversationService(cfg.convRepo, log)
	messages := service.NewMessageService(conversations, cfg.msgRepo, hub, enc, log, 100)
	notifier := service.NewNotificationService(hub, log)
	calls := service.NewCallService(conversations, messages, notifier, hub, log, cfg.ringTimeout, time.Second)

	return &env{
		hub:           hub,
		conversations: conversations,
		messages:      messages,
		notifier:      notifier,
		calls:         calls,
		convRepo:      cfg.convRepo,
		msgRepo:       cfg.msgRepo,
	}
}

// connect registers a recording peer for userID and forgets the connect
// time presence frames.
func (e *env) connect(userID string) *realtimetest.Peer {
	p := realtimetest.NewPeer(userID)
	e.hub.Connect(p)
	p.Reset()
	return p
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListForConversation(ctx context.Context, conversationID, viewerID string, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID, viewerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) MarkSeen(ctx context.Context, conversationID, recipientID string, at time.Time) (int64, error) {
	args := m.Called(ctx, conversationID, recipientID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepo) UpdateBody(ctx context.Context, id int64, body string, at time.Time) error {
	return m.Called(ctx, id, body, at).Error(0)
}

func (m *MockMessageRepo) SoftDeleteForEveryone(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockMessageRepo) HideForUser(ctx context.Context, id int64, userID string, at time.Time) error {
	return m.Called(ctx, id, userID, at).Error(0)
}

type MockConversationRepo struct {
	mock.Mock
}

func (m *MockConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) GetByParticipants(ctx context.Context, participantA, participantB string) (*domain.Conversation, error) {
	args := m.Called(ctx, participantA, participantB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) Touch(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}
