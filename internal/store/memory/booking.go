package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/booking"
	"github.com/hackgods/tutor-booking/internal/payment"
	"github.com/hackgods/tutor-booking/internal/session"
)

type sessionRepo struct{ repo }

func (r sessionRepo) CreateSession(_ context.Context, s *session.Session) error {
	defer r.lock()()
	r.s.st.sessions[s.ID] = *s
	return nil
}

func (r sessionRepo) GetSession(_ context.Context, id uuid.UUID) (*session.Session, error) {
	defer r.lock()()
	s, ok := r.s.st.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &s, nil
}

func (r sessionRepo) UpdateSession(_ context.Context, s *session.Session, expected session.Status) error {
	defer r.lock()()
	current, ok := r.s.st.sessions[s.ID]
	if !ok {
		return session.ErrNotFound
	}
	if current.Status != expected {
		return session.ErrStateChanged
	}
	r.s.st.sessions[s.ID] = *s
	return nil
}

func (r sessionRepo) ListSessions(_ context.Context, instructorID uuid.UUID, from, to time.Time) ([]session.Session, error) {
	defer r.lock()()
	var out []session.Session
	for _, s := range r.s.st.sessions {
		if s.InstructorID == instructorID && s.StartAt.Before(to) && from.Before(s.EndAt) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

type paymentRepo struct{ repo }

func (r paymentRepo) active(slotID uuid.UUID) (payment.Payment, bool) {
	for _, p := range r.s.st.payments {
		if p.SlotID == slotID && p.Status.Active() {
			return p, true
		}
	}
	return payment.Payment{}, false
}

func (r paymentRepo) CreatePayment(_ context.Context, p *payment.Payment) error {
	defer r.lock()()
	if p.Status.Active() {
		if _, ok := r.active(p.SlotID); ok {
			return payment.ErrActivePayment
		}
	}
	r.s.st.payments[p.ID] = *p
	return nil
}

func (r paymentRepo) GetPayment(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	defer r.lock()()
	p, ok := r.s.st.payments[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return &p, nil
}

func (r paymentRepo) FindActivePayment(_ context.Context, slotID uuid.UUID) (*payment.Payment, error) {
	defer r.lock()()
	p, ok := r.active(slotID)
	if !ok {
		return nil, payment.ErrNotFound
	}
	return &p, nil
}

func (r paymentRepo) UpdatePayment(_ context.Context, p *payment.Payment, expected payment.Status) error {
	defer r.lock()()
	current, ok := r.s.st.payments[p.ID]
	if !ok {
		return payment.ErrNotFound
	}
	if current.Status != expected {
		return payment.ErrStateChanged
	}
	if p.Status.Active() && current.SlotID != p.SlotID {
		if _, ok := r.active(p.SlotID); ok {
			return payment.ErrActivePayment
		}
	}
	r.s.st.payments[p.ID] = *p
	return nil
}

// Payments lists every payment for a slot. Tests use it to count active
// payments.
func (s *Store) Payments(slotID uuid.UUID) []payment.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []payment.Payment
	for _, p := range s.st.payments {
		if p.SlotID == slotID {
			out = append(out, p)
		}
	}
	return out
}

// Sessions lists every session of an instructor.
func (s *Store) Sessions(instructorID uuid.UUID) []session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.Session
	for _, sess := range s.st.sessions {
		if sess.InstructorID == instructorID {
			out = append(out, sess)
		}
	}
	return out
}

// AddInstructor registers an instructor profile for Directory lookups.
func (s *Store) AddInstructor(p booking.InstructorProfile) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	s.instructors[p.ID] = p
	s.users[p.ID] = p.DisplayName
}

// AddUser registers a display name.
func (s *Store) AddUser(id uuid.UUID, name string) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	s.users[id] = name
}

func (s *Store) Instructor(_ context.Context, id uuid.UUID) (*booking.InstructorProfile, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	p, ok := s.instructors[id]
	if !ok {
		return nil, booking.ErrInstructorNotFound
	}
	return &p, nil
}

// DisplayName returns an empty name for unknown users.
func (s *Store) DisplayName(_ context.Context, userID uuid.UUID) (string, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	return s.users[userID], nil
}
