package tracking

import (
	"context"
	"errors"
	"testing"

	"trackcore/internal/journal"
)

func TestAddGeneratesPlaceholderIdentity(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	b := &blog{Title: "new"}
	e, err := sm.Add(ctx, b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if e.State() != Added {
		t.Fatalf("state = %v, want added", e.State())
	}
	if b.ID >= 0 {
		t.Fatalf("placeholder key = %d, want negative", b.ID)
	}
	if _, ok := sm.TryGetEntryByKey(e.EntityType(), "-1"); !ok {
		t.Fatalf("entry not indexed under synthetic identity")
	}
}

func TestAttachRequiresRealKey(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	_, err := sm.Attach(ctx, &blog{})
	var keyErr KeyUnsetError
	if !errors.As(err, &keyErr) {
		t.Fatalf("attach without key = %v, want KeyUnsetError", err)
	}
	if len(sm.Entries()) != 0 {
		t.Fatalf("failed attach must not register anything")
	}
}

func TestTrackingIsIdempotentPerObject(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	b := &blog{ID: 4}
	e1, err := sm.Attach(ctx, b)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	e2, err := sm.Attach(ctx, b)
	if err != nil {
		t.Fatalf("re-attach: %v", err)
	}
	if e1 != e2 {
		t.Fatalf("re-attaching the same object must return the same entry")
	}
	if len(sm.Entries()) != 1 {
		t.Fatalf("entries = %d, want 1", len(sm.Entries()))
	}
}

func TestIdentityConflict(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	if _, err := sm.Attach(ctx, &blog{ID: 9}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	_, err := sm.Attach(ctx, &blog{ID: 9})
	var conflict IdentityConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("duplicate key = %v, want IdentityConflictError", err)
	}
	if conflict.Key != "9" {
		t.Fatalf("conflict key = %s, want 9", conflict.Key)
	}
}

func TestUntrackedTypeFailsFast(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	type stranger struct{ X int }
	_, err := sm.Add(ctx, &stranger{})
	var typeErr UntrackedTypeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("unregistered type = %v, want UntrackedTypeError", err)
	}
}

func TestStartTrackingFromQueryDedupsByIdentity(t *testing.T) {
	ctx := context.Background()
	model := newTestModel(t)
	sm := NewStateManager(model)
	blogType := entityType(t, model, "Blog")

	b1 := &blog{ID: 3, Title: "hello"}
	e1, err := sm.StartTrackingFromQuery(ctx, blogType, b1, NewValueBuffer([]any{int64(3), "hello"}))
	if err != nil {
		t.Fatalf("first materialization: %v", err)
	}
	if e1.State() != Unchanged {
		t.Fatalf("state = %v, want unchanged", e1.State())
	}

	// A second materialization of the same row returns the existing entry and
	// leaves the values the unit of work already holds untouched.
	b1.Title = "locally edited"
	b2 := &blog{ID: 3, Title: "hello"}
	e2, err := sm.StartTrackingFromQuery(ctx, blogType, b2, NewValueBuffer([]any{int64(3), "hello"}))
	if err != nil {
		t.Fatalf("second materialization: %v", err)
	}
	if e2 != e1 {
		t.Fatalf("materializing the same identity must return the existing entry")
	}
	if b1.Title != "locally edited" {
		t.Fatalf("existing values overwritten by re-materialization")
	}
	if len(sm.Entries()) != 1 {
		t.Fatalf("entries = %d, want 1", len(sm.Entries()))
	}
}

func TestAttachPullsGraph(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	b := &blog{ID: 1}
	p1 := &post{ID: 1, BlogID: ref(int64(1)), Blog: b}
	p2 := &post{ID: 2, BlogID: ref(int64(1)), Blog: b}
	b.Posts = []*post{p1, p2}

	if _, err := sm.Attach(ctx, b); err != nil {
		t.Fatalf("attach: %v", err)
	}
	for _, p := range []*post{p1, p2} {
		e, ok := sm.TryGetEntry(p)
		if !ok || e.State() != Unchanged {
			t.Fatalf("post not attached as unchanged: %v", e)
		}
	}
}

func TestAddGraphTreatsKeyedObjectsAsExisting(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	existing := &post{ID: 8, BlogID: ref(int64(0))}
	fresh := &post{}
	b := &blog{Posts: []*post{existing, fresh}}

	if _, err := sm.Add(ctx, b); err != nil {
		t.Fatalf("add: %v", err)
	}
	if e, _ := sm.TryGetEntry(existing); e.State() != Unchanged {
		t.Fatalf("keyed object state = %v, want unchanged", e.State())
	}
	if e, _ := sm.TryGetEntry(fresh); e.State() != Added {
		t.Fatalf("unkeyed object state = %v, want added", e.State())
	}
}

func TestGraphAttachmentIsCycleSafe(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	c := &category{PrincipalID: 1}
	p := &product{ID: 1, CategoryID: ref(int64(1)), Category: c}
	c.Products = []*product{p}

	if _, err := sm.Attach(ctx, c); err != nil {
		t.Fatalf("attach cyclic graph: %v", err)
	}
	if len(sm.Entries()) != 2 {
		t.Fatalf("entries = %d, want 2", len(sm.Entries()))
	}
}

func TestDeleteAddedDetaches(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	p := &post{BlogID: ref(int64(1))}
	e, err := sm.Add(ctx, p)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := sm.Delete(ctx, p); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if e.State() != Detached {
		t.Fatalf("state = %v, want detached", e.State())
	}
	if p.ID != 0 {
		t.Fatalf("temporary key not reset on detach: %d", p.ID)
	}
}

func TestDeleteCascadesThroughDependents(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	b := &blog{ID: 1}
	p1 := &post{ID: 1, BlogID: ref(int64(1))}
	p2 := &post{ID: 2, BlogID: ref(int64(1))}
	b.Posts = []*post{p1, p2}
	c := &comment{ID: 1, PostID: ref(int64(1)), Text: "nice"}

	if _, err := sm.Attach(ctx, b); err != nil {
		t.Fatalf("attach blog: %v", err)
	}
	ce, err := sm.Attach(ctx, c)
	if err != nil {
		t.Fatalf("attach comment: %v", err)
	}

	if err := sm.Delete(ctx, b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, p := range []*post{p1, p2} {
		e, _ := sm.TryGetEntry(p)
		if e.State() != Deleted {
			t.Fatalf("cascaded post state = %v, want deleted", e.State())
		}
	}
	// The comment hangs off p1 through a set-null relationship: it survives
	// with its foreign key cleared and marked modified.
	if ce.State() != Modified {
		t.Fatalf("comment state = %v, want modified", ce.State())
	}
	if c.PostID != nil {
		t.Fatalf("comment foreign key not cleared")
	}
	if !ce.IsModified(property(t, ce.EntityType(), "PostID")) {
		t.Fatalf("cleared foreign key not marked modified")
	}
}

func TestCascadeDetachesAddedDependents(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	b := &blog{ID: 1}
	if _, err := sm.Attach(ctx, b); err != nil {
		t.Fatalf("attach: %v", err)
	}
	p := &post{BlogID: ref(int64(1))}
	pe, err := sm.Add(ctx, p)
	if err != nil {
		t.Fatalf("add post: %v", err)
	}
	if err := sm.Delete(ctx, b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if pe.State() != Detached {
		t.Fatalf("added dependent state = %v, want detached", pe.State())
	}
}

func TestGeneratedKeysShareRootSequence(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	d := &device{Label: "probe"}
	s := &sensor{Unit: "C"}
	if _, err := sm.Add(ctx, d); err != nil {
		t.Fatalf("add device: %v", err)
	}
	if _, err := sm.Add(ctx, s); err != nil {
		t.Fatalf("add sensor: %v", err)
	}
	if d.ID == s.ID {
		t.Fatalf("sibling types drew colliding key %d from the shared space", d.ID)
	}

	// An unrelated root draws from its own sequence.
	b := &blog{}
	if _, err := sm.Add(ctx, b); err != nil {
		t.Fatalf("add blog: %v", err)
	}
	if b.ID != d.ID {
		t.Fatalf("independent roots should restart the sequence: blog %d, device %d", b.ID, d.ID)
	}
}

func TestEntriesOrdering(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	if _, err := sm.Attach(ctx, &post{ID: 2, BlogID: ref(int64(1))}); err != nil {
		t.Fatalf("attach post: %v", err)
	}
	if _, err := sm.Attach(ctx, &blog{ID: 1}); err != nil {
		t.Fatalf("attach blog: %v", err)
	}
	if _, err := sm.Attach(ctx, &post{ID: 1, BlogID: ref(int64(1))}); err != nil {
		t.Fatalf("attach post: %v", err)
	}
	var got []string
	for _, e := range sm.Entries() {
		got = append(got, e.EntityType().Name()+"/"+e.trackedKey)
	}
	want := []string{"Blog/1", "Post/1", "Post/2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entries order = %v, want %v", got, want)
		}
	}
}

func TestJournalRecordsStateTransitions(t *testing.T) {
	ctx := context.Background()
	t.Setenv("TRACKCORE_JOURNAL_DRIVER", "memory")
	sink, err := journal.Open(ctx)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	sm := NewStateManager(newTestModel(t), WithJournalSink(sink))

	b := &blog{ID: 1, Title: "before"}
	if _, err := sm.Attach(ctx, b); err != nil {
		t.Fatalf("attach: %v", err)
	}
	b.Title = "after"
	if err := sm.DetectChanges(ctx); err != nil {
		t.Fatalf("detect: %v", err)
	}

	// Nothing reaches the sink until the unit of work accepts.
	if recs, err := sink.List(ctx); err != nil || len(recs) != 0 {
		t.Fatalf("premature flush: %v records, err %v", len(recs), err)
	}

	if err := sm.AcceptAllChanges(ctx); err != nil {
		t.Fatalf("accept all: %v", err)
	}
	recs, err := sink.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	transitions := [][2]string{
		{"detached", "unchanged"},
		{"unchanged", "modified"},
		{"modified", "unchanged"},
	}
	for i, want := range transitions {
		if recs[i].Seq != uint64(i+1) {
			t.Fatalf("record %d seq = %d", i, recs[i].Seq)
		}
		if recs[i].EntityType != "Blog" || recs[i].FromState != want[0] || recs[i].ToState != want[1] {
			t.Fatalf("record %d = %s %s->%s, want Blog %s->%s", i, recs[i].EntityType, recs[i].FromState, recs[i].ToState, want[0], want[1])
		}
	}
	if len(recs[1].Modified) != 1 || recs[1].Modified[0] != "Title" {
		t.Fatalf("modification record properties = %v, want [Title]", recs[1].Modified)
	}
}

func TestJournalDetachRecordKeepsKey(t *testing.T) {
	// A delete followed by acceptance detaches the entry; the records written
	// on the way out still identify it.
	ctx := context.Background()
	t.Setenv("TRACKCORE_JOURNAL_DRIVER", "memory")
	sink, err := journal.Open(ctx)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	sm := NewStateManager(newTestModel(t), WithJournalSink(sink))

	b := &blog{ID: 9, Title: "doomed"}
	if _, err := sm.Attach(ctx, b); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := sm.Delete(ctx, b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := sm.AcceptAllChanges(ctx); err != nil {
		t.Fatalf("accept all: %v", err)
	}

	recs, err := sink.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	for i, rec := range recs {
		if rec.Key != "9" {
			t.Fatalf("record %d key = %q, want 9", i, rec.Key)
		}
	}
	last := recs[2]
	if last.FromState != "deleted" || last.ToState != "detached" {
		t.Fatalf("final record = %s->%s, want deleted->detached", last.FromState, last.ToState)
	}
}

// reenteringListener drives a nested top-level call from inside a
// notification, which the single-threaded contract forbids.
type reenteringListener struct {
	sm  *StateManager
	err error
}

func (l *reenteringListener) KeyPropertyChanged(_ *Entry, _ *Property, _ []*Key, _ []*ForeignKey, _, _ any) {
	l.err = l.sm.DetectChanges(context.Background())
}

func (l *reenteringListener) NavigationReferenceChanged(_ *Entry, _ *Navigation, _, _ any) {}

func (l *reenteringListener) NavigationCollectionChanged(_ *Entry, _ *Navigation, _, _ []any) {}

func TestReentrantUseFailsFast(t *testing.T) {
	ctx := context.Background()
	sm := NewStateManager(newTestModel(t))
	l := &reenteringListener{sm: sm}
	sm.AddListener(l)

	c := &category{PrincipalID: 7}
	if _, err := sm.Add(ctx, c); err != nil {
		t.Fatalf("add: %v", err)
	}
	c.PrincipalID = 8
	if err := sm.DetectChanges(ctx); err != nil {
		t.Fatalf("detect: %v", err)
	}
	var busyErr ConcurrentUseError
	if !errors.As(l.err, &busyErr) {
		t.Fatalf("nested call = %v, want ConcurrentUseError", l.err)
	}
}
