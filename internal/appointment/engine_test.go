package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"appointment-scheduler/internal/apperr"
	"appointment-scheduler/internal/directory"
	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/session"
	"appointment-scheduler/internal/store"
)

var (
	alice = model.Principal{ID: "u1", DisplayName: "Alice"}
	bob   = model.Principal{ID: "u2", DisplayName: "Bob"}
	carol = model.Principal{ID: "u3", DisplayName: "Carol"}
)

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	mem    *store.Memory
	lookup *directory.Lookup
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.mem = store.NewMemory("http://test")
	for _, p := range []model.Principal{alice, bob, carol} {
		require.NoError(s.T(), s.mem.CreateUser(s.ctx, &model.User{ID: p.ID, Email: p.ID + "@test.com", Name: p.DisplayName}))
	}
	s.lookup = directory.NewLookup(s.mem)
}

func (s *EngineSuite) engine(p model.Principal, opts ...Option) *Engine {
	return s.engineWith(p, s.mem, opts...)
}

func (s *EngineSuite) engineWith(p model.Principal, repo Repository, opts ...Option) *Engine {
	opts = append([]Option{WithLocation(time.UTC), WithClock(func() time.Time { return now })}, opts...)
	e := New(session.NewSignedIn(p), repo, s.lookup, opts...)
	s.T().Cleanup(e.Close)
	return e
}

func (s *EngineSuite) create(scheduler, counterparty model.Principal, title, desc string, at time.Time) string {
	id, err := s.mem.CreateAppointment(s.ctx, &model.NewAppointment{
		Title:          title,
		Description:    desc,
		Date:           at.Format(model.DateLayout),
		Time:           at.Format(model.TimeLayout),
		SchedulerID:    scheduler.ID,
		CounterpartyID: counterparty.ID,
		Status:         model.StatusPending,
	})
	require.NoError(s.T(), err)
	return id
}

func (s *EngineSuite) status(id string) model.Status {
	a, err := s.mem.GetAppointment(s.ctx, id)
	require.NoError(s.T(), err)
	return a.Status
}

func tomorrowAt(hour int) time.Time {
	y, m, d := now.AddDate(0, 0, 1).Date()
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func yesterdayAt(hour int) time.Time {
	y, m, d := now.AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

// Alice schedules with Bob for tomorrow; Bob sees one pending invitation.
func (s *EngineSuite) TestInvitationVisibleToCounterparty() {
	s.create(alice, bob, "Sync", "weekly sync", tomorrowAt(10))

	e := s.engine(bob)
	view, err := e.Refresh(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), view, 1)

	r := view[0]
	assert.Equal(s.T(), model.RoleCounterparty, r.Role)
	assert.Equal(s.T(), model.StatusPending, r.Status)
	assert.Equal(s.T(), "Alice", r.SchedulerName)
	assert.Equal(s.T(), "Bob", r.CounterpartyName)
	assert.Equal(s.T(), "Alice", r.OtherParty())
	assert.Equal(s.T(), []model.Action{model.ActionAccept, model.ActionDecline}, e.Actions(&r))
}

// Bob accepts; both refreshed views show accepted and Bob has nothing left.
func (s *EngineSuite) TestAcceptIsVisibleToBothParties() {
	id := s.create(alice, bob, "Sync", "weekly sync", tomorrowAt(10))

	be := s.engine(bob)
	_, err := be.Refresh(s.ctx)
	require.NoError(s.T(), err)
	require.NoError(s.T(), be.Respond(s.ctx, id, model.StatusAccepted))

	// refreshed by the transition itself
	bv := be.View()
	require.Len(s.T(), bv, 1)
	assert.Equal(s.T(), model.StatusAccepted, bv[0].Status)
	assert.Empty(s.T(), be.Actions(&bv[0]))

	ae := s.engine(alice)
	av, err := ae.Refresh(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), av, 1)
	assert.Equal(s.T(), model.StatusAccepted, av[0].Status)
	// an accepted future appointment can still be withdrawn by its scheduler
	assert.Equal(s.T(), []model.Action{model.ActionCancel}, ae.Actions(&av[0]))

	err = be.Respond(s.ctx, id, model.StatusDeclined)
	assert.ErrorIs(s.T(), err, apperr.ErrForbidden)
	assert.Equal(s.T(), model.StatusAccepted, s.status(id))
}

// A past appointment is filtered as past and cannot be cancelled.
func (s *EngineSuite) TestPastAppointment() {
	id := s.create(alice, carol, "Retro", "last sprint", yesterdayAt(9))

	e := s.engine(alice)
	_, err := e.Refresh(s.ctx)
	require.NoError(s.T(), err)

	assert.Len(s.T(), e.Visible(model.WindowPast, ""), 1)
	assert.Empty(s.T(), e.Visible(model.WindowUpcoming, ""))

	v := e.View()
	assert.Empty(s.T(), e.Actions(&v[0]))

	err = e.Cancel(s.ctx, id)
	assert.ErrorIs(s.T(), err, apperr.ErrForbidden)
	assert.Equal(s.T(), model.StatusPending, s.status(id))
}

func (s *EngineSuite) TestSearch() {
	s.create(alice, bob, "Sync", "weekly sync", tomorrowAt(10))
	s.create(alice, bob, "Lunch", "tacos", tomorrowAt(12))

	e := s.engine(alice)
	_, err := e.Refresh(s.ctx)
	require.NoError(s.T(), err)

	got := e.Visible(model.WindowAll, "sync")
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), "Sync", got[0].Title)

	assert.Len(s.T(), e.Visible(model.WindowAll, ""), 2)
}

func (s *EngineSuite) TestMissingUserGetsSentinelLabel() {
	s.create(alice, bob, "Sync", "weekly sync", tomorrowAt(10))
	s.create(carol, alice, "Coffee", "catch up", tomorrowAt(15))
	s.mem.DeleteUser(bob.ID)
	s.mem.DeleteUser(carol.ID)

	e := s.engine(alice)
	view, err := e.Refresh(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), view, 2)

	assert.Equal(s.T(), directory.UnknownUser, view[0].CounterpartyName)
	assert.Equal(s.T(), "Alice", view[0].SchedulerName)
	assert.Equal(s.T(), directory.UnknownScheduler, view[1].SchedulerName)
}

func (s *EngineSuite) TestVisibilityAndRoles() {
	s.create(alice, bob, "A-B", "x", tomorrowAt(10))
	s.create(bob, alice, "B-A", "x", tomorrowAt(11))
	s.create(bob, carol, "B-C", "x", tomorrowAt(12))
	s.create(carol, bob, "C-B", "x", tomorrowAt(13))

	for _, p := range []model.Principal{alice, bob, carol} {
		view, err := s.engine(p).Refresh(s.ctx)
		require.NoError(s.T(), err)
		all, err := s.allAppointments()
		require.NoError(s.T(), err)

		want := 0
		for _, a := range all {
			if a.Involves(p.ID) {
				want++
			}
		}
		assert.Len(s.T(), view, want, p.DisplayName)

		for _, r := range view {
			assert.True(s.T(), r.Involves(p.ID))
			assert.Equal(s.T(), r.SchedulerID == p.ID, r.Role == model.RoleScheduler)
		}
	}
}

func (s *EngineSuite) allAppointments() ([]model.Appointment, error) {
	var out []model.Appointment
	for _, p := range []model.Principal{alice, bob, carol} {
		as, err := s.mem.ListByScheduler(s.ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, as...)
	}
	return out, nil
}

func (s *EngineSuite) TestMergedViewIsSorted() {
	s.create(bob, alice, "late", "x", tomorrowAt(18))
	s.create(alice, bob, "early", "x", tomorrowAt(8))
	s.create(carol, alice, "yesterday", "x", yesterdayAt(20))
	s.create(alice, carol, "noon", "x", tomorrowAt(12))

	view, err := s.engine(alice).Refresh(s.ctx)
	require.NoError(s.T(), err)

	titles := make([]string, len(view))
	for i, r := range view {
		titles[i] = r.Title
	}
	assert.Equal(s.T(), []string{"yesterday", "early", "noon", "late"}, titles)
	for i := 1; i < len(view); i++ {
		prev, cur := view[i-1], view[i]
		assert.LessOrEqual(s.T(), prev.Date+" "+prev.Time, cur.Date+" "+cur.Time)
	}
}

func (s *EngineSuite) TestUnpaddedTimesSortByClock() {
	date := tomorrowAt(0).Format(model.DateLayout)
	for _, clock := range []string{"10:00", "9:00"} {
		_, err := s.mem.CreateAppointment(s.ctx, &model.NewAppointment{
			Title: "at " + clock, Description: "x", Date: date, Time: clock,
			SchedulerID: alice.ID, CounterpartyID: bob.ID, Status: model.StatusPending,
		})
		require.NoError(s.T(), err)
	}

	view, err := s.engine(alice).Refresh(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), view, 2)
	assert.Equal(s.T(), "at 9:00", view[0].Title)
	assert.Equal(s.T(), "at 10:00", view[1].Title)
	assert.True(s.T(), view[0].Instant.Before(view[1].Instant))
}

func (s *EngineSuite) TestCancelGating() {
	future := s.create(alice, bob, "future", "x", tomorrowAt(10))
	declined := s.create(alice, bob, "declined", "x", tomorrowAt(11))
	require.NoError(s.T(), s.mem.SetStatus(s.ctx, declined, model.StatusDeclined))

	be := s.engine(bob)
	err := be.Cancel(s.ctx, future)
	assert.ErrorIs(s.T(), err, apperr.ErrForbidden, "counterparty cannot cancel")
	assert.Equal(s.T(), model.StatusPending, s.status(future))

	ae := s.engine(alice)
	require.NoError(s.T(), ae.Cancel(s.ctx, future))
	assert.Equal(s.T(), model.StatusCancelled, s.status(future))

	// re-invoking after the transition is rejected, not re-applied
	assert.ErrorIs(s.T(), ae.Cancel(s.ctx, future), apperr.ErrForbidden)

	assert.ErrorIs(s.T(), ae.Cancel(s.ctx, declined), apperr.ErrForbidden)
	assert.Equal(s.T(), model.StatusDeclined, s.status(declined))

	ce := s.engine(carol)
	assert.ErrorIs(s.T(), ce.Cancel(s.ctx, future), apperr.ErrNotFound, "outsiders do not learn it exists")
}

func (s *EngineSuite) TestRespondGating() {
	id := s.create(alice, bob, "Sync", "x", tomorrowAt(10))

	ae := s.engine(alice)
	assert.ErrorIs(s.T(), ae.Respond(s.ctx, id, model.StatusAccepted), apperr.ErrForbidden)

	ce := s.engine(carol)
	assert.ErrorIs(s.T(), ce.Respond(s.ctx, id, model.StatusAccepted), apperr.ErrNotFound)

	be := s.engine(bob)
	assert.ErrorIs(s.T(), be.Respond(s.ctx, id, model.StatusCancelled), apperr.ErrValidation)
	assert.Equal(s.T(), model.StatusPending, s.status(id))

	require.NoError(s.T(), be.Respond(s.ctx, id, model.StatusDeclined))
	assert.Equal(s.T(), model.StatusDeclined, s.status(id))
	assert.ErrorIs(s.T(), be.Respond(s.ctx, id, model.StatusAccepted), apperr.ErrForbidden)

	assert.ErrorIs(s.T(), be.Respond(s.ctx, "missing", model.StatusAccepted), apperr.ErrNotFound)
}

func (s *EngineSuite) TestGetIsPartyOnly() {
	id := s.create(alice, bob, "Sync", "x", tomorrowAt(10))

	r, err := s.engine(bob).Get(s.ctx, id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), model.RoleCounterparty, r.Role)
	assert.Equal(s.T(), "Alice", r.SchedulerName)

	_, err = s.engine(carol).Get(s.ctx, id)
	assert.ErrorIs(s.T(), err, apperr.ErrNotFound)

	_, err = s.engine(alice).Get(s.ctx, "missing")
	assert.ErrorIs(s.T(), err, apperr.ErrNotFound)

	s.mem.FailReads(true)
	_, err = s.engine(alice).Get(s.ctx, id)
	assert.ErrorIs(s.T(), err, apperr.ErrRead)
}

func (s *EngineSuite) TestFailedRefreshKeepsView() {
	s.create(alice, bob, "Sync", "x", tomorrowAt(10))

	e := s.engine(alice)
	_, err := e.Refresh(s.ctx)
	require.NoError(s.T(), err)

	s.mem.FailReads(true)
	_, err = e.Refresh(s.ctx)
	assert.ErrorIs(s.T(), err, apperr.ErrRead)
	assert.Len(s.T(), e.View(), 1)
	assert.Equal(s.T(), "could not load data, please try again", apperr.Message(err))
}

func (s *EngineSuite) TestFailedWriteClearsBusy() {
	id := s.create(alice, bob, "Sync", "x", tomorrowAt(10))
	e := s.engine(bob)

	s.mem.FailWrites(true)
	err := e.Respond(s.ctx, id, model.StatusAccepted)
	assert.ErrorIs(s.T(), err, apperr.ErrWrite)
	assert.False(s.T(), e.Busy(id))
	assert.Equal(s.T(), model.StatusPending, s.status(id))

	s.mem.FailWrites(false)
	require.NoError(s.T(), e.Respond(s.ctx, id, model.StatusAccepted))
}

func (s *EngineSuite) TestInFlightActionMarksBusy() {
	id := s.create(alice, bob, "Sync", "x", tomorrowAt(10))
	other := s.create(alice, bob, "Other", "x", tomorrowAt(11))

	repo := &blockingRepo{Memory: s.mem, entered: make(chan string, 2), release: make(chan struct{})}
	e := s.engineWith(bob, repo)
	_, err := e.Refresh(s.ctx)
	require.NoError(s.T(), err)

	var wg sync.WaitGroup
	wg.Add(2)
	errs := make(chan error, 2)
	for _, target := range []string{id, other} {
		go func() {
			defer wg.Done()
			errs <- e.Respond(s.ctx, target, model.StatusAccepted)
		}()
	}
	<-repo.entered
	<-repo.entered

	// both appointments in flight independently
	assert.True(s.T(), e.Busy(id))
	assert.True(s.T(), e.Busy(other))
	for _, r := range e.View() {
		assert.Empty(s.T(), e.Actions(&r))
	}
	assert.ErrorIs(s.T(), e.Respond(s.ctx, id, model.StatusDeclined), apperr.ErrBusy)

	close(repo.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(s.T(), err)
	}
	assert.False(s.T(), e.Busy(id))
	assert.False(s.T(), e.Busy(other))
	assert.Equal(s.T(), model.StatusAccepted, s.status(id))
}

func (s *EngineSuite) TestStalledWriteTimesOut() {
	id := s.create(alice, bob, "Sync", "x", tomorrowAt(10))

	repo := &blockingRepo{Memory: s.mem, entered: make(chan string, 1), release: make(chan struct{})}
	e := s.engineWith(bob, repo, WithActionTimeout(20*time.Millisecond))

	err := e.Respond(s.ctx, id, model.StatusAccepted)
	assert.ErrorIs(s.T(), err, apperr.ErrWrite)
	assert.ErrorIs(s.T(), err, context.DeadlineExceeded)
	assert.False(s.T(), e.Busy(id))
}

func (s *EngineSuite) TestFailedLookupRefreshesView() {
	id := s.create(alice, bob, "Sync", "x", tomorrowAt(10))

	repo := &failingGetRepo{Memory: s.mem}
	e := s.engineWith(alice, repo)
	_, err := e.Refresh(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), e.View(), 1)

	// written elsewhere after the last refresh
	s.create(alice, carol, "Review", "x", tomorrowAt(11))

	err = e.Cancel(s.ctx, id)
	assert.ErrorIs(s.T(), err, apperr.ErrRead)
	assert.False(s.T(), e.Busy(id))
	assert.Len(s.T(), e.View(), 2)
	assert.Equal(s.T(), model.StatusPending, s.status(id))
}

func (s *EngineSuite) TestSessionChanges() {
	s.create(alice, bob, "Sync", "x", tomorrowAt(10))

	sess := session.NewSignedIn(alice)
	e := New(sess, s.mem, s.lookup, WithLocation(time.UTC), WithClock(func() time.Time { return now }))
	defer e.Close()

	_, err := e.Refresh(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), e.View(), 1)

	sess.SignOut()
	assert.Empty(s.T(), e.View())
	_, err = e.Refresh(s.ctx)
	assert.ErrorIs(s.T(), err, apperr.ErrUnauthenticated)

	sess.SignIn(carol)
	view, err := e.Refresh(s.ctx)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), view)
}

// failingGetRepo lists normally but cannot read single appointments.
type failingGetRepo struct {
	*store.Memory
}

func (f *failingGetRepo) GetAppointment(context.Context, string) (*model.Appointment, error) {
	return nil, apperr.Read("get appointment", errors.New("connection reset"))
}

// blockingRepo holds SetStatus until release is closed or ctx ends.
type blockingRepo struct {
	*store.Memory
	entered chan string
	release chan struct{}
}

func (b *blockingRepo) SetStatus(ctx context.Context, id string, st model.Status) error {
	b.entered <- id
	select {
	case <-b.release:
		return b.Memory.SetStatus(ctx, id, st)
	case <-ctx.Done():
		return apperr.Write("set status", ctx.Err())
	}
}
