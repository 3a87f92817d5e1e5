package tracking

// RelationshipListener is the notification contract between change tracking
// and relationship fixup. The change detector (or the push-notification glue
// for entities that raise their own events) is the sole caller. Listeners
// keep dependent foreign-key values and inverse navigations consistent; they
// must not re-enter change detection synchronously.
type RelationshipListener interface {
	// KeyPropertyChanged fires when a key or foreign-key property's value
	// moved away from its relationship snapshot. Reverting to a previously
	// reported value fires again: fixup consumers need every transition,
	// including the one back to the original value.
	KeyPropertyChanged(entry *Entry, property *Property, containingKeys []*Key, containingForeignKeys []*ForeignKey, oldValue, newValue any)

	// NavigationReferenceChanged fires when a reference navigation points at
	// a different object than the snapshot.
	NavigationReferenceChanged(entry *Entry, navigation *Navigation, oldValue, newValue any)

	// NavigationCollectionChanged fires with the membership delta of a
	// collection navigation since the snapshot.
	NavigationCollectionChanged(entry *Entry, navigation *Navigation, added, removed []any)
}
