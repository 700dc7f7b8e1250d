package availability

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
)

type fakeBlocked struct {
	rows []model.BlockedInterval
	err  error
}

func (f *fakeBlocked) FindActiveOverlapping(_ context.Context, start, end time.Time) ([]model.BlockedInterval, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.BlockedInterval
	for _, b := range f.rows {
		if b.Active && b.Start.Before(end) && b.End.After(start) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeAppointments struct {
	rows  []model.Appointment
	calls int
}

func (f *fakeAppointments) FindOverlapping(_ context.Context, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	f.calls++
	var out []model.Appointment
	for _, a := range f.rows {
		if a.ID == excludeID || !a.Status.BlocksTime() {
			continue
		}
		if a.StartTime.Before(end) && a.EndTime().After(start) {
			out = append(out, a)
		}
	}
	return out, nil
}

func mondayToSaturday(t *testing.T) *calendar.Calendar {
	t.Helper()
	week, err := calendar.UniformWeek(calendar.Hours{
		Open:  calendar.Clock(9 * time.Hour),
		Close: calendar.Clock(17 * time.Hour),
	}, "")
	if err != nil {
		t.Fatalf("UniformWeek failed: %v", err)
	}
	cal, err := calendar.New(calendar.Config{Location: time.UTC, Weekly: week, ClosedDays: []time.Weekday{time.Sunday}})
	if err != nil {
		t.Fatalf("calendar.New failed: %v", err)
	}
	return cal
}

func mar20(h, m int) time.Time {
	return time.Date(2024, 3, 20, h, m, 0, 0, time.UTC)
}

func newChecker(t *testing.T, blocks []model.BlockedInterval, appts []model.Appointment) (*Checker, *fakeAppointments) {
	t.Helper()
	fa := &fakeAppointments{rows: appts}
	return NewChecker(mondayToSaturday(t), NewBlockedIndex(&fakeBlocked{rows: blocks}), fa), fa
}

func TestIsAvailableWorkedExample(t *testing.T) {
	existing := model.Appointment{ID: "a1", StartTime: mar20(10, 0), DurationMinutes: 60, Status: model.StatusConfirmed}
	checker, _ := newChecker(t, nil, []model.Appointment{existing})
	ctx := context.Background()

	cases := []struct {
		name     string
		start    time.Time
		duration int
		want     Decision
	}{
		{"overlaps existing", mar20(10, 30), 30, Decision{Reason: ReasonConflict}},
		{"after existing", mar20(11, 0), 30, Decision{Available: true}},
		{"past close", mar20(16, 45), 30, Decision{Reason: ReasonOutsideBusinessHours}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := checker.IsAvailable(ctx, tc.start, tc.duration, "")
			if err != nil {
				t.Fatalf("IsAvailable failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestIsAvailableExcludesSelfOnReschedule(t *testing.T) {
	existing := model.Appointment{ID: "a1", StartTime: mar20(10, 0), DurationMinutes: 60, Status: model.StatusConfirmed}
	checker, _ := newChecker(t, nil, []model.Appointment{existing})

	got, err := checker.IsAvailable(context.Background(), mar20(10, 30), 60, "a1")
	if err != nil {
		t.Fatalf("IsAvailable failed: %v", err)
	}
	if !got.Available {
		t.Fatalf("moving a1 within its own slot must be allowed, got %+v", got)
	}
}

func TestIsAvailableIgnoresCancelled(t *testing.T) {
	cancelled := model.Appointment{ID: "a1", StartTime: mar20(10, 0), DurationMinutes: 60, Status: model.StatusCancelled}
	checker, _ := newChecker(t, nil, []model.Appointment{cancelled})

	got, err := checker.IsAvailable(context.Background(), mar20(10, 0), 60, "")
	if err != nil || !got.Available {
		t.Fatalf("cancelled appointment must not block, got %+v (%v)", got, err)
	}
}

func TestIsAvailableBlockedInterval(t *testing.T) {
	blocks := []model.BlockedInterval{
		{ID: "b1", Start: mar20(12, 0), End: mar20(13, 0), Reason: "staff meeting", Active: true},
		{ID: "b2", Start: mar20(14, 0), End: mar20(15, 0), Reason: "old", Active: false},
	}
	checker, appts := newChecker(t, blocks, nil)
	ctx := context.Background()

	for _, start := range []time.Time{mar20(11, 30), mar20(12, 15), mar20(12, 45)} {
		got, err := checker.IsAvailable(ctx, start, 30, "")
		if err != nil {
			t.Fatalf("IsAvailable failed: %v", err)
		}
		if got.Reason != ReasonBlocked {
			t.Fatalf("start %s: expected blocked, got %+v", start.Format("15:04"), got)
		}
	}
	if appts.calls != 0 {
		t.Fatalf("appointment lookup should be skipped once blocked, got %d calls", appts.calls)
	}

	got, err := checker.IsAvailable(ctx, mar20(14, 0), 60, "")
	if err != nil || !got.Available {
		t.Fatalf("inactive block must not apply, got %+v (%v)", got, err)
	}
	got, err = checker.IsAvailable(ctx, mar20(11, 30), 30, "")
	if err != nil || !got.Available {
		t.Fatalf("slot ending at block start must be free, got %+v (%v)", got, err)
	}
}

func TestIsAvailableSurfacesRepositoryErrors(t *testing.T) {
	boom := errors.New("db down")
	checker := NewChecker(mondayToSaturday(t), NewBlockedIndex(&fakeBlocked{err: boom}), &fakeAppointments{})
	if _, err := checker.IsAvailable(context.Background(), mar20(10, 0), 30, ""); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped repository error, got %v", err)
	}
}

// Books random requests through the checker and asserts no two accepted bookings overlap.
func TestNoDoubleBookingProperty(t *testing.T) {
	fa := &fakeAppointments{}
	checker := NewChecker(mondayToSaturday(t), NewBlockedIndex(&fakeBlocked{}), fa)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 400; i++ {
		start := mar20(9, 0).Add(time.Duration(rng.Intn(32)) * 15 * time.Minute)
		duration := 15 * (1 + rng.Intn(6))
		exclude := ""
		if len(fa.rows) > 0 && rng.Intn(4) == 0 {
			// Reschedule an existing booking.
			exclude = fa.rows[rng.Intn(len(fa.rows))].ID
		}
		d, err := checker.IsAvailable(ctx, start, duration, exclude)
		if err != nil {
			t.Fatalf("IsAvailable failed: %v", err)
		}
		if !d.Available {
			continue
		}
		if exclude != "" {
			for j := range fa.rows {
				if fa.rows[j].ID == exclude {
					fa.rows[j].StartTime = start
					fa.rows[j].DurationMinutes = duration
				}
			}
			continue
		}
		fa.rows = append(fa.rows, model.Appointment{
			ID:              fmt.Sprintf("appt-%d", i),
			StartTime:       start,
			DurationMinutes: duration,
			Status:          model.StatusConfirmed,
		})
	}

	for i := range fa.rows {
		for j := i + 1; j < len(fa.rows); j++ {
			a := timewindow.New(fa.rows[i].StartTime, fa.rows[i].DurationMinutes)
			b := timewindow.New(fa.rows[j].StartTime, fa.rows[j].DurationMinutes)
			if a.Overlaps(b) {
				t.Fatalf("double booking: %+v and %+v", fa.rows[i], fa.rows[j])
			}
		}
	}
}

func TestFreeSlots(t *testing.T) {
	existing := model.Appointment{ID: "a1", StartTime: mar20(10, 0), DurationMinutes: 60, Status: model.StatusConfirmed}
	blocks := []model.BlockedInterval{{ID: "b1", Start: mar20(12, 0), End: mar20(16, 0), Active: true}}
	checker, _ := newChecker(t, blocks, []model.Appointment{existing})

	slots, err := checker.FreeSlots(context.Background(), mar20(0, 0), 60, 60, mar20(0, 0))
	if err != nil {
		t.Fatalf("FreeSlots failed: %v", err)
	}
	var got []string
	for _, s := range slots {
		got = append(got, s.Start.Format("15:04"))
	}
	want := []string{"09:00", "11:00", "16:00"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	slots, err = checker.FreeSlots(context.Background(), mar20(0, 0), 60, 60, mar20(10, 30))
	if err != nil {
		t.Fatalf("FreeSlots failed: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected past slots skipped, got %d", len(slots))
	}

	sunday := time.Date(2024, 3, 24, 0, 0, 0, 0, time.UTC)
	if slots, _ := checker.FreeSlots(context.Background(), sunday, 60, 60, sunday); len(slots) != 0 {
		t.Fatalf("closed day must have no slots, got %d", len(slots))
	}
}

func TestActiveIntervalsForLocalDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	local := func(y int, m time.Month, d, h int) time.Time { return time.Date(y, m, d, h, 0, 0, 0, ny) }

	blocks := []model.BlockedInterval{
		{ID: "before", Start: local(2024, 3, 9, 20), End: local(2024, 3, 9, 23), Active: true},
		{ID: "spring", Start: local(2024, 3, 10, 1), End: local(2024, 3, 10, 4), Active: true},
		{ID: "late", Start: local(2024, 3, 10, 23), End: local(2024, 3, 11, 1), Active: true},
		{ID: "next", Start: local(2024, 3, 11, 0), End: local(2024, 3, 11, 2), Active: true},
		{ID: "inactive", Start: local(2024, 3, 10, 12), End: local(2024, 3, 10, 13), Active: false},
		{ID: "fall", Start: local(2024, 11, 3, 23), End: local(2024, 11, 4, 0), Active: true},
	}
	idx := NewBlockedIndex(&fakeBlocked{rows: blocks})
	ids := func(rows []model.BlockedInterval) []string {
		var out []string
		for _, r := range rows {
			out = append(out, r.ID)
		}
		return out
	}

	// The spring-forward day is 23 hours long; its last hour still belongs to it.
	if day := timewindow.DayBounds(local(2024, 3, 10, 12), ny); day.End.Sub(day.Start) != 23*time.Hour {
		t.Fatalf("expected a 23h day, got %s", day.End.Sub(day.Start))
	}
	got, err := idx.ActiveIntervalsFor(context.Background(), local(2024, 3, 10, 12), ny)
	if err != nil {
		t.Fatalf("ActiveIntervalsFor: %v", err)
	}
	if fmt.Sprint(ids(got)) != "[spring late]" {
		t.Fatalf("unexpected spring-forward blocks: %v", ids(got))
	}

	// The fall-back day is 25 hours long, so 23:00 local is still inside it.
	if day := timewindow.DayBounds(local(2024, 11, 3, 12), ny); day.End.Sub(day.Start) != 25*time.Hour {
		t.Fatalf("expected a 25h day, got %s", day.End.Sub(day.Start))
	}
	got, err = idx.ActiveIntervalsFor(context.Background(), local(2024, 11, 3, 1), ny)
	if err != nil {
		t.Fatalf("ActiveIntervalsFor: %v", err)
	}
	if fmt.Sprint(ids(got)) != "[fall]" {
		t.Fatalf("unexpected fall-back blocks: %v", ids(got))
	}

	if _, err := NewBlockedIndex(&fakeBlocked{err: errors.New("db down")}).ActiveIntervalsFor(context.Background(), local(2024, 3, 10, 12), ny); err == nil {
		t.Fatal("expected repository error")
	}
}

func TestFreeSlotsOnSpringForwardDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	week, _ := calendar.UniformWeek(calendar.Hours{Open: calendar.Clock(0), Close: calendar.Clock(6 * time.Hour)}, "")
	cal, err := calendar.New(calendar.Config{Location: ny, Weekly: week})
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	block := model.BlockedInterval{
		ID:     "b1",
		Start:  time.Date(2024, 3, 10, 4, 0, 0, 0, ny),
		End:    time.Date(2024, 3, 10, 5, 0, 0, 0, ny),
		Active: true,
	}
	checker := NewChecker(cal, NewBlockedIndex(&fakeBlocked{rows: []model.BlockedInterval{block}}), &fakeAppointments{})

	day := time.Date(2024, 3, 10, 12, 0, 0, 0, ny)
	slots, err := checker.FreeSlots(context.Background(), day, 60, 60, day.AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("FreeSlots: %v", err)
	}
	var got []string
	for _, s := range slots {
		got = append(got, s.Start.In(ny).Format("15:04"))
	}
	// 00:00-06:00 local is five real hours; 02:00 does not exist and 04:00 is blocked.
	if fmt.Sprint(got) != "[00:00 01:00 03:00 05:00]" {
		t.Fatalf("unexpected slots: %v", got)
	}
}
