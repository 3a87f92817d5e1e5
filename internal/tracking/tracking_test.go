package tracking

import (
	"testing"

	"trackcore/pkg/metadata"
)

// Fixture types spanning the storage and strategy shapes the core supports:
// a principal with a dependent collection, a cascade-configured dependent, a
// set-null dependent, a composite-key principal with required and optional
// dependents, a push-notification type, a fully shadow type and a small
// inheritance hierarchy sharing one key space.

type blog struct {
	ID    int64
	Title string
	Posts []*post
}

type post struct {
	ID     int64
	Title  string
	BlogID *int64
	Blog   *blog
}

type comment struct {
	ID     int64
	PostID *int64
	Text   string
}

type category struct {
	PrincipalID int64
	Products    []*product
}

type product struct {
	ID         int64
	CategoryID *int64
	Category   *category
}

type shipment struct {
	A int64
	B int64
}

type parcel struct {
	ID    int64
	ShipA *int64
	ShipB *int64
}

type waybill struct {
	ID    int64
	ShipA *int64
	ShipB *int64
}

type account struct {
	ID      int64
	Owner   string
	Balance float64
}

type device struct {
	ID    int64
	Label string
}

type sensor struct {
	device
	Unit string
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	model, err := metadata.NewBuilder().
		AddEntity(metadata.EntityConfig{
			Name:      "Blog",
			Prototype: blog{},
			Strategy:  metadata.Snapshot,
			Properties: []metadata.PropertyConfig{
				{Name: "ID", Field: "ID", StoreGenerated: true, RequiresValueGenerator: true},
				{Name: "Title", Field: "Title"},
			},
			Key: []string{"ID"},
			Navigations: []metadata.NavigationConfig{
				{Name: "Posts", Field: "Posts", ForeignKey: "FK_Blog", Target: "Post", Collection: true, Inverse: "Blog"},
			},
		}).
		AddEntity(metadata.EntityConfig{
			Name:      "Post",
			Prototype: post{},
			Strategy:  metadata.Snapshot,
			Properties: []metadata.PropertyConfig{
				{Name: "ID", Field: "ID", StoreGenerated: true, RequiresValueGenerator: true},
				{Name: "Title", Field: "Title"},
				{Name: "BlogID", Field: "BlogID"},
			},
			Key: []string{"ID"},
			ForeignKeys: []metadata.ForeignKeyConfig{
				{Name: "FK_Blog", Properties: []string{"BlogID"}, Principal: "Blog", Required: true, DeleteBehavior: metadata.Cascade},
			},
			Navigations: []metadata.NavigationConfig{
				{Name: "Blog", Field: "Blog", ForeignKey: "FK_Blog", Inverse: "Posts"},
			},
		}).
		AddEntity(metadata.EntityConfig{
			Name:      "Comment",
			Prototype: comment{},
			Strategy:  metadata.Snapshot,
			Properties: []metadata.PropertyConfig{
				{Name: "ID", Field: "ID"},
				{Name: "PostID", Field: "PostID"},
				{Name: "Text", Field: "Text"},
			},
			Key: []string{"ID"},
			ForeignKeys: []metadata.ForeignKeyConfig{
				{Name: "FK_Post", Properties: []string{"PostID"}, Principal: "Post", DeleteBehavior: metadata.SetNull},
			},
		}).
		AddEntity(metadata.EntityConfig{
			Name:      "Category",
			Prototype: category{},
			Strategy:  metadata.Snapshot,
			Properties: []metadata.PropertyConfig{
				{Name: "PrincipalID", Field: "PrincipalID"},
			},
			Key: []string{"PrincipalID"},
			Navigations: []metadata.NavigationConfig{
				{Name: "Products", Field: "Products", ForeignKey: "FK_Category", Target: "Product", Collection: true, Inverse: "Category"},
			},
		}).
		AddEntity(metadata.EntityConfig{
			Name:      "Product",
			Prototype: product{},
			Strategy:  metadata.Snapshot,
			Properties: []metadata.PropertyConfig{
				{Name: "ID", Field: "ID", StoreGenerated: true, RequiresValueGenerator: true},
				{Name: "CategoryID", Field: "CategoryID"},
			},
			Key: []string{"ID"},
			ForeignKeys: []metadata.ForeignKeyConfig{
				{Name: "FK_Category", Properties: []string{"CategoryID"}, Principal: "Category"},
			},
			Navigations: []metadata.NavigationConfig{
				{Name: "Category", Field: "Category", ForeignKey: "FK_Category", Inverse: "Products"},
			},
		}).
		AddEntity(metadata.EntityConfig{
			Name:      "Shipment",
			Prototype: shipment{},
			Strategy:  metadata.Snapshot,
			Properties: []metadata.PropertyConfig{
				{Name: "A", Field: "A"},
				{Name: "B", Field: "B"},
			},
			Key: []string{"A", "B"},
		}).
		AddEntity(metadata.EntityConfig{
			Name:      "Parcel",
			Prototype: parcel{},
			Strategy:  metadata.Snapshot,
			Properties: []metadata.PropertyConfig{
				{Name: "ID", Field: "ID"},
				{Name: "ShipA", Field: "ShipA"},
				{Name: "ShipB", Field: "ShipB"},
			},
			Key: []string{"ID"},
			ForeignKeys: []metadata.ForeignKeyConfig{
				{Name: "FK_Shipment", Properties: []string{"ShipA", "ShipB"}, Principal: "Shipment", Required: true},
			},
		}).
		AddEntity(metadata.EntityConfig{
			Name:      "Waybill",
			Prototype: waybill{},
			Strategy:  metadata.Snapshot,
			Properties: []metadata.PropertyConfig{
				{Name: "ID", Field: "ID"},
				{Name: "ShipA", Field: "ShipA"},
				{Name: "ShipB", Field: "ShipB"},
			},
			Key: []string{"ID"},
			ForeignKeys: []metadata.ForeignKeyConfig{
				{Name: "FK_Shipment", Properties: []string{"ShipA", "ShipB"}, Principal: "Shipment"},
			},
		}).
		AddEntity(metadata.EntityConfig{
			Name:      "Account",
			Prototype: account{},
			Strategy:  metadata.ChangingAndChangedNotifications,
			Properties: []metadata.PropertyConfig{
				{Name: "ID", Field: "ID"},
				{Name: "Owner", Field: "Owner"},
				{Name: "Balance", Field: "Balance"},
			},
			Key: []string{"ID"},
		}).
		AddEntity(metadata.EntityConfig{
			Name: "AuditLog",
			Properties: []metadata.PropertyConfig{
				{Name: "ID", Kind: metadata.KindInt},
				{Name: "Message", Kind: metadata.KindString},
			},
			Key: []string{"ID"},
		}).
		AddEntity(metadata.EntityConfig{
			Name:      "Device",
			Prototype: device{},
			Strategy:  metadata.Snapshot,
			Properties: []metadata.PropertyConfig{
				{Name: "ID", Field: "ID", StoreGenerated: true, RequiresValueGenerator: true},
				{Name: "Label", Field: "Label"},
			},
			Key: []string{"ID"},
		}).
		AddEntity(metadata.EntityConfig{
			Name:      "Sensor",
			Prototype: sensor{},
			Base:      "Device",
			Strategy:  metadata.Snapshot,
			Properties: []metadata.PropertyConfig{
				{Name: "Unit", Field: "Unit"},
			},
		}).
		Build()
	if err != nil {
		t.Fatalf("build test model: %v", err)
	}
	return model
}

func entityType(t *testing.T, m *Model, name string) *EntityType {
	t.Helper()
	et, ok := m.EntityType(name)
	if !ok {
		t.Fatalf("entity type %s not in model", name)
	}
	return et
}

func property(t *testing.T, et *EntityType, name string) *Property {
	t.Helper()
	p, ok := et.Property(name)
	if !ok {
		t.Fatalf("property %s not on %s", name, et.Name())
	}
	return p
}

func ref[T any](v T) *T { return &v }

// keyChange captures one KeyPropertyChanged notification.
type keyChange struct {
	property string
	from, to any
}

// collectionChange captures one NavigationCollectionChanged notification.
type collectionChange struct {
	navigation     string
	added, removed []any
}

// referenceChange captures one NavigationReferenceChanged notification.
type referenceChange struct {
	navigation string
	from, to   any
}

type recordingListener struct {
	keys       []keyChange
	references []referenceChange
	collection []collectionChange
}

func (l *recordingListener) KeyPropertyChanged(_ *Entry, p *Property, _ []*Key, _ []*ForeignKey, oldValue, newValue any) {
	l.keys = append(l.keys, keyChange{property: p.Name(), from: oldValue, to: newValue})
}

func (l *recordingListener) NavigationReferenceChanged(_ *Entry, n *Navigation, oldValue, newValue any) {
	l.references = append(l.references, referenceChange{navigation: n.Name(), from: oldValue, to: newValue})
}

func (l *recordingListener) NavigationCollectionChanged(_ *Entry, n *Navigation, added, removed []any) {
	l.collection = append(l.collection, collectionChange{navigation: n.Name(), added: added, removed: removed})
}

func (l *recordingListener) reset() {
	l.keys = nil
	l.references = nil
	l.collection = nil
}
