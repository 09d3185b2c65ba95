// Package memstore is an in-process store with the same semantics as the Postgres
// repositories. It backs tests and STORAGE_DRIVER=memory runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
)

type Store struct {
	mu       sync.RWMutex
	doctors  map[string]model.Doctor
	patients map[string]model.Patient
	windows  map[string]model.AvailabilityWindow
	appts    map[string]model.Appointment
	events   []outbox.Record
	nextEvt  int64

	locks   *keyLocks
	drainMu sync.Mutex
	now     func() time.Time
}

func New() *Store {
	return &Store{
		doctors:  map[string]model.Doctor{},
		patients: map[string]model.Patient{},
		windows:  map[string]model.AvailabilityWindow{},
		appts:    map[string]model.Appointment{},
		locks:    newKeyLocks(),
		now:      time.Now,
	}
}

// Ping satisfies readiness checks.
func (s *Store) Ping(context.Context) error { return nil }

// Directory

func (s *Store) UpsertDoctor(_ context.Context, d model.Doctor) error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("doctor id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[d.ID] = d
	return nil
}

func (s *Store) UpsertPatient(_ context.Context, p model.Patient) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("patient id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
	return nil
}

func (s *Store) GetDoctor(_ context.Context, id string) (model.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	if !ok {
		return model.Doctor{}, model.ErrNotFound
	}
	return d, nil
}

func (s *Store) GetPatient(_ context.Context, id string) (model.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return model.Patient{}, model.ErrNotFound
	}
	return p, nil
}

// Schedule

func (s *Store) InsertWindow(_ context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[w.DoctorID]; !ok {
		return model.AvailabilityWindow{}, model.ErrUnknownEntity
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	s.windows[w.ID] = w
	return w, nil
}

func (s *Store) UpdateWindow(_ context.Context, w model.AvailabilityWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.windows[w.ID]
	if !ok {
		return model.ErrNotFound
	}
	w.DoctorID = cur.DoctorID
	s.windows[w.ID] = w
	return nil
}

func (s *Store) DeleteWindow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[id]; !ok {
		return model.ErrNotFound
	}
	delete(s.windows, id)
	return nil
}

func (s *Store) GetWindow(_ context.Context, id string) (model.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[id]
	if !ok {
		return model.AvailabilityWindow{}, model.ErrNotFound
	}
	return w, nil
}

func (s *Store) ListWindows(_ context.Context, doctorID string, date time.Time) ([]model.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.windowsLocked(doctorID, date, false), nil
}

func (s *Store) AvailableWindows(_ context.Context, doctorID string, date time.Time) ([]model.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.windowsLocked(doctorID, date, true), nil
}

func (s *Store) windowsLocked(doctorID string, date time.Time, onlyAvailable bool) []model.AvailabilityWindow {
	day := model.DateOf(date)
	var out []model.AvailabilityWindow
	for _, w := range s.windows {
		if w.DoctorID != doctorID || !w.Date.Equal(day) {
			continue
		}
		if onlyAvailable && !w.Available {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End < out[j].End
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Appointments

func (s *Store) BookedIntervals(_ context.Context, doctorID string, date time.Time) ([]model.BookedInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bookedOn(s.appts, nil, doctorID, date), nil
}

func bookedOn(committed, staged map[string]model.Appointment, doctorID string, date time.Time) []model.BookedInterval {
	day := model.DateOf(date)
	var out []model.BookedInterval
	visit := func(a model.Appointment) {
		if a.DoctorID == doctorID && a.Date().Equal(day) && a.Status.BlocksCalendar() {
			out = append(out, a.Booked())
		}
	}
	for id, a := range committed {
		if _, ok := staged[id]; ok {
			continue
		}
		visit(a)
	}
	for _, a := range staged {
		visit(a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (s *Store) Get(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListForDoctor(_ context.Context, doctorID string, date time.Time) ([]model.Appointment, error) {
	day := model.DateOf(date)
	return s.filter(func(a model.Appointment) bool {
		return a.DoctorID == doctorID && a.Date().Equal(day)
	}), nil
}

func (s *Store) ListForPatient(_ context.Context, patientID string) ([]model.Appointment, error) {
	return s.filter(func(a model.Appointment) bool { return a.PatientID == patientID }), nil
}

func (s *Store) CountActive(_ context.Context, party model.Party) (int, error) {
	return len(s.filter(func(a model.Appointment) bool {
		return a.Status != model.StatusCancelled && party.References(a)
	})), nil
}

// UpcomingConfirmed lists confirmed appointments starting within [from, to].
func (s *Store) UpcomingConfirmed(_ context.Context, from, to time.Time) ([]model.AppointmentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AppointmentDetail
	for _, a := range s.appts {
		if a.Status != model.StatusConfirmed || a.Start.Before(from) || a.Start.After(to) {
			continue
		}
		out = append(out, model.AppointmentDetail{
			Appointment: a,
			Doctor:      s.doctors[a.DoctorID],
			Patient:     s.patients[a.PatientID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Appointment.Start.Before(out[j].Appointment.Start) })
	return out, nil
}

func (s *Store) filter(keep func(model.Appointment) bool) []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Appointment{}
	for _, a := range s.appts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Atomic holds the named locks for the duration of fn and applies staged writes only
// when fn succeeds.
func (s *Store) Atomic(ctx context.Context, locks []string, fn func(ledger.Tx) error) error {
	release, err := s.locks.acquire(ctx, locks)
	if err != nil {
		return err
	}
	defer release()

	t := &tx{s: s, staged: map[string]model.Appointment{}}
	if err := fn(t); err != nil {
		return err
	}
	return s.apply(t)
}

func (s *Store) apply(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Mirror of the foreign keys and the exclusion constraint: checked here as well, so
	// they hold even when a caller took a different lock.
	for id, a := range t.staged {
		if _, ok := s.doctors[a.DoctorID]; !ok {
			return model.ErrUnknownEntity
		}
		if _, ok := s.patients[a.PatientID]; !ok {
			return model.ErrUnknownEntity
		}
		if !a.Status.BlocksCalendar() {
			continue
		}
		candidate := availability.Interval{Start: a.Start, End: a.End()}
		for otherID, o := range s.appts {
			if otherID == id || o.DoctorID != a.DoctorID || !o.Status.BlocksCalendar() {
				continue
			}
			if _, restaged := t.staged[otherID]; restaged {
				continue
			}
			if availability.Overlaps(candidate, availability.Interval{Start: o.Start, End: o.End()}) {
				return model.ErrOverlap
			}
		}
	}
	for _, p := range t.deletes {
		for _, a := range s.appts {
			if a.Status != model.StatusCancelled && p.References(a) {
				return model.ErrStillReferenced
			}
		}
	}

	for id, a := range t.staged {
		s.appts[id] = a
	}
	for _, p := range t.deletes {
		s.deletePartyLocked(p)
	}
	for _, e := range t.events {
		s.nextEvt++
		e.ID = s.nextEvt
		e.CreatedAt = s.now()
		s.events = append(s.events, e)
	}
	return nil
}

func (s *Store) deletePartyLocked(p model.Party) {
	for id, a := range s.appts {
		if p.References(a) {
			delete(s.appts, id)
		}
	}
	switch p.Kind {
	case model.PartyDoctor:
		for id, w := range s.windows {
			if w.DoctorID == p.ID {
				delete(s.windows, id)
			}
		}
		delete(s.doctors, p.ID)
	case model.PartyPatient:
		delete(s.patients, p.ID)
	}
}

type tx struct {
	s       *Store
	staged  map[string]model.Appointment
	deletes []model.Party
	events  []outbox.Record
}

func (t *tx) BookedIntervals(_ context.Context, doctorID string, date time.Time) ([]model.BookedInterval, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return bookedOn(t.s.appts, t.staged, doctorID, date), nil
}

func (t *tx) AvailableWindows(ctx context.Context, doctorID string, date time.Time) ([]model.AvailabilityWindow, error) {
	return t.s.AvailableWindows(ctx, doctorID, date)
}

func (t *tx) GetForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	if a, ok := t.staged[id]; ok {
		return a, nil
	}
	return t.s.Get(ctx, id)
}

func (t *tx) Insert(_ context.Context, appt model.Appointment) error {
	t.s.mu.RLock()
	_, doctorOK := t.s.doctors[appt.DoctorID]
	_, patientOK := t.s.patients[appt.PatientID]
	_, exists := t.s.appts[appt.ID]
	t.s.mu.RUnlock()

	if !doctorOK || !patientOK {
		return model.ErrUnknownEntity
	}
	if _, staged := t.staged[appt.ID]; exists || staged {
		return fmt.Errorf("appointment %s already exists", appt.ID)
	}
	t.staged[appt.ID] = appt
	return nil
}

func (t *tx) Update(ctx context.Context, appt model.Appointment) error {
	if _, err := t.GetForUpdate(ctx, appt.ID); err != nil {
		return err
	}
	t.staged[appt.ID] = appt
	return nil
}

func (t *tx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	t.events = append(t.events, outbox.Record{
		EventID:       uuid.NewString(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       evt.Payload,
		Traceparent:   traceparent,
		Tracestate:    tracestate,
	})
	return nil
}

func (t *tx) LockParty(_ context.Context, p model.Party) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var ok bool
	switch p.Kind {
	case model.PartyDoctor:
		_, ok = t.s.doctors[p.ID]
	case model.PartyPatient:
		_, ok = t.s.patients[p.ID]
	}
	if !ok {
		return model.ErrNotFound
	}
	return nil
}

// CountActive counts committed and staged appointments that still reference p.
func (t *tx) CountActive(_ context.Context, p model.Party) (int, error) {
	n := 0
	t.visit(func(a model.Appointment) {
		if a.Status != model.StatusCancelled && p.References(a) {
			n++
		}
	})
	return n, nil
}

func (t *tx) DeleteParty(_ context.Context, p model.Party) (int, error) {
	removed := 0
	t.visit(func(a model.Appointment) {
		if p.References(a) {
			removed++
		}
	})
	t.deletes = append(t.deletes, p)
	return removed, nil
}

// visit calls fn for every appointment as this transaction sees it.
func (t *tx) visit(fn func(model.Appointment)) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for id, a := range t.s.appts {
		if _, ok := t.staged[id]; !ok {
			fn(a)
		}
	}
	for _, a := range t.staged {
		fn(a)
	}
}

// Outbox

// Drain implements outbox.Source. Events are handed out in insertion order.
func (s *Store) Drain(_ context.Context, limit int, publish func([]outbox.Record) error) (int, error) {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	s.mu.RLock()
	var batch []outbox.Record
	for _, e := range s.events {
		if len(batch) == limit {
			break
		}
		if !e.Published {
			batch = append(batch, e)
		}
	}
	s.mu.RUnlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if err := publish(batch); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	done := make(map[int64]bool, len(batch))
	for _, e := range batch {
		done[e.ID] = true
	}
	for i := range s.events {
		if done[s.events[i].ID] {
			s.events[i].Published = true
		}
	}
	return len(batch), nil
}

// Events returns a copy of every recorded event, published or not.
func (s *Store) Events() []outbox.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbox.Record(nil), s.events...)
}
