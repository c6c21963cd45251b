package worker

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IBM/sarama"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/bank-relay/internal/audit"
	"github.com/illegalcall/bank-relay/internal/config"
	"github.com/illegalcall/bank-relay/internal/models"
)

// MockConsumerGroup mocks sarama.ConsumerGroup
type MockConsumerGroup struct {
	mock.Mock
}

func (m *MockConsumerGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	args := m.Called(ctx, topics, handler)
	return args.Error(0)
}

func (m *MockConsumerGroup) Errors() <-chan error {
	args := m.Called()
	return args.Get(0).(chan error)
}

func (m *MockConsumerGroup) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConsumerGroup) Pause(partitions map[string][]int32) {
	m.Called(partitions)
}

func (m *MockConsumerGroup) Resume(partitions map[string][]int32) {
	m.Called(partitions)
}

func (m *MockConsumerGroup) PauseAll() {
	m.Called()
}

func (m *MockConsumerGroup) ResumeAll() {
	m.Called()
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

// setupTestWorker creates a test worker with mocked dependencies
func setupTestWorker(t *testing.T) (*Worker, sqlmock.Sqlmock, *MockConsumerGroup) {
	sqlDB, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := audit.NewStore(sqlx.NewDb(sqlDB, "sqlmock"))
	cfg := config.KafkaConfig{
		Topic:        "test-topic",
		Group:        "test-group",
		RetryMax:     3,
		RetryBackoff: time.Millisecond,
	}
	consumer := new(MockConsumerGroup)

	return NewWorker(cfg, store, consumer, zerolog.Nop()), sqlMock, consumer
}

func eventMessage(t *testing.T, ev models.ConnectionTestEvent, offset int64) *sarama.ConsumerMessage {
	value, err := json.Marshal(ev)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Value: value, Offset: offset}
}

var insertQuery = regexp.QuoteMeta("INSERT INTO connection_test_audit")

func TestProcessMessage(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	ev := models.ConnectionTestEvent{
		RequestID:     "req-1",
		CorrelationID: "client-1",
		BankID:        "bank-1",
		Outcome:       models.OutcomeForwarded,
		Success:       true,
		Message:       "ok",
		DurationMS:    10,
		OccurredAt:    at,
	}

	testCases := []struct {
		name        string
		msg         func(t *testing.T) *sarama.ConsumerMessage
		setupMocks  func(m sqlmock.Sqlmock)
		expectError error
		anyError    bool
	}{
		{
			name: "stores event",
			msg:  func(t *testing.T) *sarama.ConsumerMessage { return eventMessage(t, ev, 1) },
			setupMocks: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insertQuery).
					WithArgs("req-1", "client-1", "bank-1", "forwarded", true, "ok", int64(10), at).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
		},
		{
			name: "retries failed insert",
			msg:  func(t *testing.T) *sarama.ConsumerMessage { return eventMessage(t, ev, 1) },
			setupMocks: func(m sqlmock.Sqlmock) {
				m.ExpectExec(insertQuery).WillReturnError(errors.New("deadlock"))
				m.ExpectExec(insertQuery).WillReturnResult(sqlmock.NewResult(1, 1))
			},
		},
		{
			name: "gives up after retry max",
			msg:  func(t *testing.T) *sarama.ConsumerMessage { return eventMessage(t, ev, 1) },
			setupMocks: func(m sqlmock.Sqlmock) {
				for i := 0; i < 3; i++ {
					m.ExpectExec(insertQuery).WillReturnError(errors.New("db down"))
				}
			},
			anyError: true,
		},
		{
			name: "invalid json",
			msg: func(t *testing.T) *sarama.ConsumerMessage {
				return &sarama.ConsumerMessage{Value: []byte(`{"request_id":`)}
			},
			setupMocks:  func(m sqlmock.Sqlmock) {},
			expectError: errUndecodable,
		},
		{
			name: "missing request id",
			msg: func(t *testing.T) *sarama.ConsumerMessage {
				return &sarama.ConsumerMessage{Value: []byte(`{"bank_id":"b"}`)}
			},
			setupMocks:  func(m sqlmock.Sqlmock) {},
			expectError: errUndecodable,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			worker, sqlMock, _ := setupTestWorker(t)
			tc.setupMocks(sqlMock)

			err := worker.processMessage(context.Background(), tc.msg(t))

			switch {
			case tc.expectError != nil:
				assert.ErrorIs(t, err, tc.expectError)
			case tc.anyError:
				assert.ErrorContains(t, err, "db down")
			default:
				assert.NoError(t, err)
			}
			assert.NoError(t, sqlMock.ExpectationsWereMet())
		})
	}
}

func TestConsumeClaimMarksEveryMessage(t *testing.T) {
	worker, sqlMock, _ := setupTestWorker(t)
	worker.cfg.RetryMax = 1

	sqlMock.ExpectExec(insertQuery).WillReturnResult(sqlmock.NewResult(1, 1))

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- eventMessage(t, models.ConnectionTestEvent{RequestID: "req-1"}, 7)
	claim.messages <- &sarama.ConsumerMessage{Value: []byte("garbage"), Offset: 8}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, worker.ConsumeClaim(session, claim))

	assert.Equal(t, []int64{7, 8}, session.marked)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestConsumeClaimStopsWithSession(t *testing.T) {
	worker, _, _ := setupTestWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}
	session := &fakeSession{ctx: ctx}
	assert.NoError(t, worker.ConsumeClaim(session, claim))
	assert.Empty(t, session.marked)
}

func TestWorkerStart(t *testing.T) {
	worker, sqlMock, consumer := setupTestWorker(t)

	sqlMock.ExpectExec("CREATE TABLE IF NOT EXISTS connection_test_audit").
		WillReturnResult(sqlmock.NewResult(0, 0))

	errChan := make(chan error)
	consumer.On("Errors").Return(errChan)
	consumer.On("Consume", mock.Anything, []string{"test-topic"}, worker).
		Run(func(args mock.Arguments) {
			handler := args.Get(2).(sarama.ConsumerGroupHandler)
			_ = handler.Setup(nil)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := worker.Start(ctx)
	assert.NoError(t, err)

	select {
	case <-worker.ready:
	default:
		t.Fatal("worker never became ready")
	}
	consumer.AssertExpectations(t)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestWorkerStartSchemaError(t *testing.T) {
	worker, sqlMock, consumer := setupTestWorker(t)

	sqlMock.ExpectExec("CREATE TABLE IF NOT EXISTS connection_test_audit").
		WillReturnError(errors.New("permission denied"))

	err := worker.Start(context.Background())
	assert.ErrorContains(t, err, "permission denied")
	consumer.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything)
}
