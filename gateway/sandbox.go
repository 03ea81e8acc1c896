package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrUnknownIntent = errors.New("gateway: unknown intent")

// Sandbox is an in-process processor for local runs and tests. Intents stay
// pending until Settle moves them.
type Sandbox struct {
	mu        sync.Mutex
	intents   map[string]Intent
	byKey     map[string]string
	createErr []error
	getErr    []error
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		intents: make(map[string]Intent),
		byKey:   make(map[string]string),
	}
}

func (s *Sandbox) CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, transient("create intent", err)
	}
	if err := validateCreate(p); err != nil {
		return Intent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := pop(&s.createErr); err != nil {
		return Intent{}, err
	}
	if id, ok := s.byKey[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return s.intents[id], nil
	}

	id := "pi_sandbox_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	in := Intent{
		ID:           id,
		ClientSecret: fmt.Sprintf("%s_secret_%s", id, uuid.NewString()[:8]),
		Status:       IntentPending,
		AmountMinor:  p.AmountMinor,
		Currency:     strings.ToLower(p.Currency),
	}
	s.intents[id] = in
	if p.IdempotencyKey != "" {
		s.byKey[p.IdempotencyKey] = id
	}
	return in, nil
}

func (s *Sandbox) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, transient("retrieve intent", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := pop(&s.getErr); err != nil {
		return Intent{}, err
	}
	in, ok := s.intents[intentID]
	if !ok {
		return Intent{}, rejected("retrieve intent", fmt.Errorf("%w: %s", ErrUnknownIntent, intentID))
	}
	return in, nil
}

// Settle records the processor outcome for an intent.
func (s *Sandbox) Settle(intentID string, status IntentStatus, paymentMethod string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[intentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIntent, intentID)
	}
	in.Status = status
	in.PaymentMethod = paymentMethod
	s.intents[intentID] = in
	return nil
}

// Register seeds an intent with a fixed id.
func (s *Sandbox) Register(in Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[in.ID] = in
}

// FailNextCreate queues errors returned by the next CreateIntent calls, in order.
func (s *Sandbox) FailNextCreate(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = append(s.createErr, errs...)
}

// FailNextRetrieve queues errors returned by the next RetrieveIntent calls, in order.
func (s *Sandbox) FailNextRetrieve(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = append(s.getErr, errs...)
}

func pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}
