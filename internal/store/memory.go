/**
 * @description
 * In-memory implementation of the `Repository` interface, used by tests and
 * local development. A single mutex serializes writes, and `Apply` validates
 * every part of a ledger write before mutating anything, so the all-or-nothing
 * contract holds exactly as it does for the PostgreSQL implementation.
 *
 * FailNextApply injects a store failure ahead of the next Apply call so tests
 * can prove that a failed multi-path write leaves no partial state behind.
 */

package store

import (
	"context"
	"sync"
	"time"

	"github.com/mhs/fees-service/internal/domain"
)

// Memory is an in-memory Repository.
type Memory struct {
	mu             sync.Mutex
	students       map[string]*domain.Student
	studentNumbers map[string]string // studentNumber -> student id
	transactions   map[string]*domain.Transaction
	byOrderRef     map[string]string // orderReference -> transaction id
	adjustments    map[string]*domain.FeeAdjustment
	activity       map[string]*domain.BursarActivity
	notifications  []domain.Notification
	users          map[string]*domain.User
	config         *domain.SchoolConfig
	failNext       error
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		students:       make(map[string]*domain.Student),
		studentNumbers: make(map[string]string),
		transactions:   make(map[string]*domain.Transaction),
		byOrderRef:     make(map[string]string),
		adjustments:    make(map[string]*domain.FeeAdjustment),
		activity:       make(map[string]*domain.BursarActivity),
		users:          make(map[string]*domain.User),
	}
}

// FailNextApply makes the next Apply call fail with err before mutating state.
func (m *Memory) FailNextApply(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func cloneStudent(s *domain.Student) *domain.Student {
	out := *s
	out.Financials.Terms = make(map[string]domain.TermBalance, len(s.Financials.Terms))
	for k, v := range s.Financials.Terms {
		out.Financials.Terms[k] = v
	}
	return &out
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	out := *t
	if t.GatewayResponse != nil {
		out.GatewayResponse = append([]byte(nil), t.GatewayResponse...)
	}
	return &out
}

func (m *Memory) FindStudentByID(_ context.Context, id string) (*domain.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, ErrStudentNotFound
	}
	return cloneStudent(s), nil
}

func (m *Memory) StudentNumberExists(_ context.Context, studentNumber string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.studentNumbers[studentNumber]
	return ok, nil
}

func (m *Memory) ListStudentIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.students))
	for id := range m.students {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Memory) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return cloneTransaction(t), nil
}

func (m *Memory) FindTransactionByOrderReference(_ context.Context, orderReference string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byOrderRef[orderReference]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return cloneTransaction(m.transactions[id]), nil
}

func (m *Memory) GetConfig(_ context.Context) (*domain.SchoolConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		return nil, ErrConfigNotFound
	}
	out := *m.config
	out.ActiveTerms = append([]string(nil), m.config.ActiveTerms...)
	return &out, nil
}

func (m *Memory) SaveConfig(_ context.Context, cfg *domain.SchoolConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *cfg
	out.ActiveTerms = append([]string(nil), cfg.ActiveTerms...)
	m.config = &out
	return nil
}

func (m *Memory) FindUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (m *Memory) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *Memory) CreateNotification(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

// Notifications returns a snapshot of all recorded notifications.
func (m *Memory) Notifications() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notification(nil), m.notifications...)
}

// Transactions returns a snapshot of all recorded transactions.
func (m *Memory) Transactions() []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		out = append(out, *t)
	}
	return out
}

// Adjustments returns a snapshot of all fee-adjustment audit records.
func (m *Memory) Adjustments() []domain.FeeAdjustment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.FeeAdjustment, 0, len(m.adjustments))
	for _, a := range m.adjustments {
		out = append(out, *a)
	}
	return out
}

// Activity returns a snapshot of all bursar-activity audit records.
func (m *Memory) Activity() []domain.BursarActivity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BursarActivity, 0, len(m.activity))
	for _, b := range m.activity {
		out = append(out, *b)
	}
	return out
}

// Apply validates every part of the write under the lock, then commits every
// part. No state is touched until all preconditions have passed.
func (m *Memory) Apply(_ context.Context, w LedgerWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}

	// Validation pass.
	if w.Student != nil {
		s, ok := m.students[w.Student.StudentID]
		if !ok {
			return ErrStudentNotFound
		}
		if s.Version != w.Student.ExpectedVersion {
			return ErrVersionConflict
		}
	}
	if w.StatusChange != nil {
		t, ok := m.transactions[w.StatusChange.TransactionID]
		if !ok {
			return ErrTransactionNotFound
		}
		if t.Status != w.StatusChange.ExpectedStatus {
			return ErrStatusConflict
		}
	}
	if w.NewStudent != nil {
		if _, ok := m.studentNumbers[w.NewStudent.StudentNumber]; ok {
			return ErrDuplicateStudentNumber
		}
	}

	// Commit pass.
	if w.Student != nil {
		s := m.students[w.Student.StudentID]
		s.Financials.Terms = make(map[string]domain.TermBalance, len(w.Student.Terms))
		for k, v := range w.Student.Terms {
			s.Financials.Terms[k] = v
		}
		s.Financials.Balance = w.Student.Balance
		s.Version++
	}
	if w.StatusChange != nil {
		t := m.transactions[w.StatusChange.TransactionID]
		t.Status = w.StatusChange.NewStatus
		t.DisplayStatus = w.StatusChange.DisplayStatus
		if w.StatusChange.GatewayResponse != nil {
			t.GatewayResponse = append([]byte(nil), w.StatusChange.GatewayResponse...)
		}
		t.LastError = w.StatusChange.LastError
		t.UpdatedAt = time.Now().UTC()
	}
	if w.NewTransaction != nil {
		t := cloneTransaction(w.NewTransaction)
		m.transactions[t.ID] = t
		if t.OrderReference != "" {
			m.byOrderRef[t.OrderReference] = t.ID
		}
	}
	if w.Adjustment != nil {
		a := *w.Adjustment
		m.adjustments[a.ID] = &a
	}
	if w.Activity != nil {
		b := *w.Activity
		m.activity[b.ID] = &b
	}
	if w.NewStudent != nil {
		s := cloneStudent(w.NewStudent)
		m.students[s.ID] = s
		m.studentNumbers[s.StudentNumber] = s.ID
	}
	if w.NewUser != nil {
		u := *w.NewUser
		m.users[u.ID] = &u
	}
	return nil
}
