package tracking

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync/atomic"
	"time"

	"trackcore/internal/journal"
)

// StateManager is the identity map for one logical unit of work: it owns the
// set of tracked entries, indexes them by entity type and key, and
// coordinates state transitions, cascades and graph attachment.
//
// A StateManager and the entries it owns are not safe for concurrent use. A
// reentrancy guard makes cross-goroutine calls fail fast with
// ConcurrentUseError instead of corrupting the map.
type StateManager struct {
	model    *Model
	detector *ChangeDetector
	attacher *GraphAttacher

	objectEntries map[any]*Entry                    // live object identity -> entry
	shadowEntries map[*Entry]struct{}               // fully shadow entries, tracked or not
	identity      map[*EntityType]map[string]*Entry // root type -> key string -> entry
	generators    map[*EntityType]*valueGenerator   // keyed by root type

	listeners []RelationshipListener
	metrics   MetricsRecorder
	tracer    Tracer
	sink      journal.Sink

	pending    []journal.Record
	journalSeq uint64
	busy       atomic.Bool
}

// Option configures a StateManager.
type Option func(*StateManager)

// WithListener registers a relationship listener.
func WithListener(l RelationshipListener) Option {
	return func(sm *StateManager) { sm.listeners = append(sm.listeners, l) }
}

// WithMetricsRecorder installs a metrics recorder around top-level
// operations.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(sm *StateManager) { sm.metrics = rec }
}

// WithTracer installs a tracer around top-level operations.
func WithTracer(tr Tracer) Option {
	return func(sm *StateManager) { sm.tracer = tr }
}

// WithJournalSink installs a sink receiving one record per entry state
// transition. Records buffer in memory and flush on AcceptAllChanges.
func WithJournalSink(sink journal.Sink) Option {
	return func(sm *StateManager) { sm.sink = sink }
}

// NewStateManager constructs an empty state manager over a resolved model.
func NewStateManager(model *Model, opts ...Option) *StateManager {
	sm := &StateManager{
		model:         model,
		objectEntries: make(map[any]*Entry),
		shadowEntries: make(map[*Entry]struct{}),
		identity:      make(map[*EntityType]map[string]*Entry),
		generators:    make(map[*EntityType]*valueGenerator),
	}
	sm.detector = &ChangeDetector{sm: sm}
	sm.attacher = &GraphAttacher{sm: sm}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Model returns the metadata model the manager tracks against.
func (sm *StateManager) Model() *Model { return sm.model }

// ChangeDetector returns the manager's change detector.
func (sm *StateManager) ChangeDetector() *ChangeDetector { return sm.detector }

// GraphAttacher returns the manager's graph attacher.
func (sm *StateManager) GraphAttacher() *GraphAttacher { return sm.attacher }

// AddListener registers a relationship listener after construction.
func (sm *StateManager) AddListener(l RelationshipListener) {
	sm.listeners = append(sm.listeners, l)
}

func (sm *StateManager) enter(operation string) error {
	if !sm.busy.CompareAndSwap(false, true) {
		return ConcurrentUseError{Operation: operation}
	}
	return nil
}

func (sm *StateManager) leave() { sm.busy.Store(false) }

// GetOrCreateEntry returns the entry already tracking the object, or a new
// Detached entry bound to the metadata for the object's runtime type.
// Requesting an entry for an unregistered type is a caller error.
func (sm *StateManager) GetOrCreateEntry(entity any) (*Entry, error) {
	if entity == nil {
		return nil, fmt.Errorf("cannot track a nil entity")
	}
	if e, ok := sm.objectEntries[entity]; ok {
		return e, nil
	}
	et, ok := sm.model.EntityTypeOf(entity)
	if !ok {
		return nil, UntrackedTypeError{GoType: reflect.TypeOf(entity).String()}
	}
	e, err := newEntry(sm, et, entity)
	if err != nil {
		return nil, err
	}
	sm.objectEntries[entity] = e
	return e, nil
}

// TryGetEntry looks up a tracked entry by object identity.
func (sm *StateManager) TryGetEntry(entity any) (*Entry, bool) {
	e, ok := sm.objectEntries[entity]
	if !ok || e.state == Detached {
		return nil, false
	}
	return e, true
}

// TryGetEntryByKey looks up a tracked entry in the identity map.
func (sm *StateManager) TryGetEntryByKey(entityType *EntityType, key string) (*Entry, bool) {
	bucket, ok := sm.identity[entityType.RootType()]
	if !ok {
		return nil, false
	}
	e, ok := bucket[key]
	return e, ok
}

// CreateShadowEntry constructs a Detached entry for a fully shadow entity
// type; there is no live object and all values live inside the entry.
func (sm *StateManager) CreateShadowEntry(entityType *EntityType) (*Entry, error) {
	e, err := newEntry(sm, entityType, nil)
	if err != nil {
		return nil, err
	}
	sm.shadowEntries[e] = struct{}{}
	return e, nil
}

// StartTrackingFromQuery brings a freshly materialized object under tracking
// as Unchanged, seeding snapshots from the value buffer instead of live
// getters. When an entry for the same identity already exists it is returned
// untouched, preserving the values the unit of work already holds.
func (sm *StateManager) StartTrackingFromQuery(ctx context.Context, entityType *EntityType, entity any, buf ValueBuffer) (*Entry, error) {
	var entry *Entry
	err := sm.observed(ctx, "track_from_query", func() error {
		if err := sm.enter("track_from_query"); err != nil {
			return err
		}
		defer sm.leave()

		var e *Entry
		var err error
		if entity == nil {
			e, err = sm.CreateShadowEntry(entityType)
		} else {
			e, err = sm.GetOrCreateEntry(entity)
		}
		if err != nil {
			return err
		}
		if e.state != Detached {
			entry = e
			return nil
		}
		if err := e.seedFromBuffer(buf); err != nil {
			return err
		}
		if existing, ok := sm.lookupExisting(e); ok {
			entry = existing
			return nil
		}
		if err := e.SetState(Unchanged); err != nil {
			return err
		}
		entry = e
		return nil
	})
	return entry, err
}

func (sm *StateManager) lookupExisting(e *Entry) (*Entry, bool) {
	key, err := e.keyString()
	if err != nil {
		return nil, false
	}
	existing, ok := sm.TryGetEntryByKey(e.entityType, key)
	if ok && existing != e {
		return existing, true
	}
	return nil, false
}

// Add begins tracking the object as Added and pulls its reachable graph into
// the manager.
func (sm *StateManager) Add(ctx context.Context, entity any) (*Entry, error) {
	return sm.trackRoot(ctx, "add", entity, Added)
}

// Attach begins tracking the object as Unchanged and pulls its reachable
// graph into the manager.
func (sm *StateManager) Attach(ctx context.Context, entity any) (*Entry, error) {
	return sm.trackRoot(ctx, "attach", entity, Unchanged)
}

func (sm *StateManager) trackRoot(ctx context.Context, op string, entity any, state EntityState) (*Entry, error) {
	var entry *Entry
	err := sm.observed(ctx, op, func() error {
		if err := sm.enter(op); err != nil {
			return err
		}
		defer sm.leave()

		e, err := sm.GetOrCreateEntry(entity)
		if err != nil {
			return err
		}
		if e.state == Detached {
			if err := e.SetState(state); err != nil {
				return err
			}
		}
		if err := sm.attacher.AttachGraph(e, state); err != nil {
			return err
		}
		entry = e
		return nil
	})
	return entry, err
}

// Delete marks the tracked object Deleted; an Added object detaches instead.
func (sm *StateManager) Delete(ctx context.Context, entity any) error {
	return sm.observed(ctx, "delete", func() error {
		if err := sm.enter("delete"); err != nil {
			return err
		}
		defer sm.leave()

		e, ok := sm.TryGetEntry(entity)
		if !ok {
			return fmt.Errorf("cannot delete an untracked entity")
		}
		if e.state == Added {
			return e.SetState(Detached)
		}
		return e.SetState(Deleted)
	})
}

// DetectChanges runs pull-based change detection across all tracked entries.
func (sm *StateManager) DetectChanges(ctx context.Context) error {
	return sm.observed(ctx, "detect_changes", func() error {
		if err := sm.enter("detect_changes"); err != nil {
			return err
		}
		defer sm.leave()
		return sm.detector.DetectChangesAll()
	})
}

// AcceptAllChanges accepts every tracked entry's pending changes and flushes
// buffered journal records to the configured sink.
func (sm *StateManager) AcceptAllChanges(ctx context.Context) error {
	return sm.observed(ctx, "accept_all_changes", func() error {
		if err := sm.enter("accept_all_changes"); err != nil {
			return err
		}
		defer sm.leave()

		for _, e := range sm.Entries() {
			if err := e.AcceptChanges(); err != nil {
				return err
			}
		}
		return sm.flushJournal(ctx)
	})
}

func (sm *StateManager) flushJournal(ctx context.Context) error {
	if sm.sink == nil || len(sm.pending) == 0 {
		return nil
	}
	records := sm.pending
	sm.pending = nil
	if err := sm.sink.Append(ctx, records); err != nil {
		return fmt.Errorf("append change journal: %w", err)
	}
	return nil
}

// Entries returns all tracked entries ordered by entity-type name and key.
func (sm *StateManager) Entries() []*Entry {
	var out []*Entry
	for _, bucket := range sm.identity {
		for _, e := range bucket {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].entityType.Name() != out[j].entityType.Name() {
			return out[i].entityType.Name() < out[j].entityType.Name()
		}
		return out[i].trackedKey < out[j].trackedKey
	})
	return out
}

// startTracking registers an entry in the identity map under its computed
// key. Tracking the same object twice is idempotent; a distinct object
// resolving to an already claimed key is an identity conflict.
func (sm *StateManager) startTracking(e *Entry) error {
	key, err := e.keyString()
	if err != nil {
		return err
	}
	root := e.entityType.RootType()
	bucket, ok := sm.identity[root]
	if !ok {
		bucket = make(map[string]*Entry)
		sm.identity[root] = bucket
	}
	if existing, claimed := bucket[key]; claimed && existing != e {
		return IdentityConflictError{EntityType: e.entityType.Name(), Key: key}
	}
	bucket[key] = e
	e.trackedKey = key
	return nil
}

// stopTracking removes an entry from the identity map.
func (sm *StateManager) stopTracking(e *Entry) {
	if bucket, ok := sm.identity[e.entityType.RootType()]; ok {
		if bucket[e.trackedKey] == e {
			delete(bucket, e.trackedKey)
		}
	}
	e.trackedKey = ""
}

// reindex re-keys an entry after a key property change while Added.
func (sm *StateManager) reindex(e *Entry) error {
	if e.state == Detached {
		return nil
	}
	key, err := e.keyString()
	if err != nil {
		return err
	}
	if key == e.trackedKey {
		return nil
	}
	bucket := sm.identity[e.entityType.RootType()]
	if existing, claimed := bucket[key]; claimed && existing != e {
		return IdentityConflictError{EntityType: e.entityType.Name(), Key: key}
	}
	delete(bucket, e.trackedKey)
	bucket[key] = e
	e.trackedKey = key
	return nil
}

// generateValue draws from the per-root-type generator so sibling types
// sharing a base's key space never collide.
func (sm *StateManager) generateValue(entityType *EntityType, p *Property) (any, bool, error) {
	root := entityType.RootType()
	g, ok := sm.generators[root]
	if !ok {
		g = &valueGenerator{}
		sm.generators[root] = g
	}
	return g.next(p)
}

// entryStateChanged records a transition for the journal buffer.
func (sm *StateManager) entryStateChanged(e *Entry, from, to EntityState) {
	if sm.sink == nil || from == to {
		return
	}
	sm.journalSeq++
	rec := journal.Record{
		Seq:        sm.journalSeq,
		RecordedAt: time.Now().UTC(),
		EntityType: e.entityType.Name(),
		Key:        e.trackedKey,
		FromState:  from.String(),
		ToState:    to.String(),
	}
	for _, p := range e.entityType.Properties() {
		if e.modified.has(p.Index()) {
			rec.Modified = append(rec.Modified, p.Name())
		}
	}
	sm.pending = append(sm.pending, rec)
}

// keyPropertyChanged re-indexes the entry when a primary-key value moved and
// forwards the notification to all listeners.
func (sm *StateManager) keyPropertyChanged(e *Entry, p *Property, oldValue, newValue any) error {
	if p.IsKey() {
		if err := sm.reindex(e); err != nil {
			return err
		}
	}
	for _, l := range sm.listeners {
		l.KeyPropertyChanged(e, p, p.ContainingKeys(), p.ContainingForeignKeys(), oldValue, newValue)
	}
	return nil
}

func (sm *StateManager) navigationReferenceChanged(e *Entry, n *Navigation, oldValue, newValue any) {
	for _, l := range sm.listeners {
		l.NavigationReferenceChanged(e, n, oldValue, newValue)
	}
}

func (sm *StateManager) navigationCollectionChanged(e *Entry, n *Navigation, added, removed []any) {
	for _, l := range sm.listeners {
		l.NavigationCollectionChanged(e, n, added, removed)
	}
}

// cascadeFrom propagates a delete or detach to dependents reachable through
// cascade-configured foreign keys. The visited set guards cyclic graphs.
func (sm *StateManager) cascadeFrom(principal *Entry, visited map[*Entry]struct{}) {
	if visited == nil {
		visited = map[*Entry]struct{}{principal: {}}
	}
	target := principal.state // Deleted or Detached
	for _, dependent := range sm.Entries() {
		if _, seen := visited[dependent]; seen {
			continue
		}
		for _, fk := range dependent.entityType.ForeignKeys() {
			if fk.DeleteBehavior() == DeleteNoAction {
				continue
			}
			if !fk.PrincipalType().IsAssignableFrom(principal.entityType) {
				continue
			}
			if !sm.foreignKeyMatches(dependent, fk, principal) {
				continue
			}
			visited[dependent] = struct{}{}
			switch fk.DeleteBehavior() {
			case DeleteCascade:
				next := target
				if dependent.state == Added {
					next = Detached
				}
				_ = dependent.setState(next, false)
			case DeleteSetNull:
				for _, p := range fk.Properties() {
					_ = dependent.SetCurrentValue(p, nil)
					if dependent.state.keysFixed() {
						_ = dependent.SetPropertyModified(p, true)
					}
				}
			}
			break
		}
	}
}

// foreignKeyMatches reports whether the dependent's FK values equal the
// principal's key values, all non-nil.
func (sm *StateManager) foreignKeyMatches(dependent *Entry, fk *ForeignKey, principal *Entry) bool {
	principalProps := fk.PrincipalKey().Properties()
	for i, p := range fk.Properties() {
		dv := dependent.GetCurrentValue(p)
		principalProp, ok := principal.entityType.Property(principalProps[i].Name())
		if !ok {
			return false
		}
		pv := principal.GetCurrentValue(principalProp)
		if dv == nil || pv == nil || !valuesEqual(dv, pv) {
			return false
		}
	}
	return true
}

// HandleConceptualNulls applies conceptual-null handling to every tracked
// dependent entry.
func (sm *StateManager) HandleConceptualNulls() error {
	for _, e := range sm.Entries() {
		if err := e.HandleConceptualNulls(); err != nil {
			return err
		}
	}
	return nil
}
