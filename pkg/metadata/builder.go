package metadata

import (
	"fmt"
	"reflect"
	"time"
)

// PropertyKind names the store type of a shadow property. Backed properties
// derive their value type from the backing struct field and ignore it.
type PropertyKind int

// Shadow property store types.
const (
	KindAny PropertyKind = iota
	KindInt
	KindString
	KindFloat
	KindBool
	KindTime
	KindBytes
)

func (k PropertyKind) valueType() reflect.Type {
	switch k {
	case KindInt:
		return reflect.TypeOf(int64(0))
	case KindString:
		return reflect.TypeOf("")
	case KindFloat:
		return reflect.TypeOf(float64(0))
	case KindBool:
		return reflect.TypeOf(false)
	case KindTime:
		return reflect.TypeOf(time.Time{})
	case KindBytes:
		return reflect.TypeOf([]byte(nil))
	default:
		return nil
	}
}

// PropertyConfig declares one property of an entity type.
type PropertyConfig struct {
	Name                   string
	Field                  string       // backing struct field name; empty declares a shadow property
	Kind                   PropertyKind // store type for shadow properties
	Nullable               bool
	StoreGenerated         bool // value produced by the store on insert
	ReadOnlyBeforeSave     bool
	ReadOnlyAfterSave      bool
	RequiresValueGenerator bool
	ConcurrencyToken       bool
}

// ForeignKeyConfig declares an association from this (dependent) entity type
// to a principal entity type's key.
type ForeignKeyConfig struct {
	Name           string   // unique per dependent type
	Properties     []string // dependent property names, ordered
	Principal      string   // principal entity-type name
	Required       bool
	DeleteBehavior DeleteBehavior
}

// NavigationConfig declares a relationship traversal backed by a struct
// field. When Target is empty the foreign key is looked up on the declaring
// type and the navigation points at the principal; otherwise the foreign key
// is looked up on the Target (dependent) type and the navigation points back
// at the dependents.
type NavigationConfig struct {
	Name       string
	Field      string
	ForeignKey string
	Target     string // dependent type name for principal-side navigations
	Collection bool
	Inverse    string // navigation name on the other end
}

// EntityConfig declares one entity type.
type EntityConfig struct {
	Name        string
	Prototype   any    // zero struct value of the backing type; nil declares a fully-shadow type
	Base        string // base entity-type name for derived types
	Strategy    ChangeTrackingStrategy
	Properties  []PropertyConfig
	Key         []string // key property names; inherited from the base when empty
	ForeignKeys []ForeignKeyConfig
	Navigations []NavigationConfig
}

// Builder accumulates entity declarations and resolves them into a Model.
type Builder struct {
	configs []EntityConfig
	byName  map[string]int
}

// NewBuilder returns an empty model builder.
func NewBuilder() *Builder {
	return &Builder{byName: make(map[string]int)}
}

// AddEntity registers an entity declaration. Build reports conflicts.
func (b *Builder) AddEntity(cfg EntityConfig) *Builder {
	b.byName[cfg.Name] = len(b.configs)
	b.configs = append(b.configs, cfg)
	return b
}

// Build resolves all declarations into an immutable model. Derived types
// inherit and re-resolve their base's properties, key, foreign keys and
// navigations so that index spaces line up across the hierarchy.
func (b *Builder) Build() (*Model, error) {
	model := &Model{
		types: make(map[string]*EntityType, len(b.configs)),
		byGo:  make(map[reflect.Type]*EntityType),
	}

	for _, cfg := range b.configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("entity declared without a name")
		}
		if _, exists := model.types[cfg.Name]; exists {
			return nil, fmt.Errorf("entity %s declared twice", cfg.Name)
		}
		et := &EntityType{
			name:      cfg.Name,
			strategy:  cfg.Strategy,
			byName:    make(map[string]*Property),
			navByName: make(map[string]*Navigation),
		}
		if cfg.Prototype != nil {
			t := reflect.TypeOf(cfg.Prototype)
			if t.Kind() == reflect.Pointer {
				t = t.Elem()
			}
			if t.Kind() != reflect.Struct {
				return nil, fmt.Errorf("entity %s: prototype must be a struct, got %s", cfg.Name, t.Kind())
			}
			if prev, dup := model.byGo[t]; dup {
				return nil, fmt.Errorf("entity %s: struct type %s already bound to %s", cfg.Name, t.Name(), prev.name)
			}
			et.goType = t
			model.byGo[t] = et
		}
		model.types[cfg.Name] = et
	}

	// Link bases before property resolution; inherited members depend on it.
	for _, cfg := range b.configs {
		if cfg.Base == "" {
			continue
		}
		base, ok := model.types[cfg.Base]
		if !ok {
			return nil, fmt.Errorf("entity %s: unknown base type %s", cfg.Name, cfg.Base)
		}
		model.types[cfg.Name].base = base
	}
	for _, cfg := range b.configs {
		if err := checkBaseCycle(model.types[cfg.Name]); err != nil {
			return nil, err
		}
	}

	resolved := make(map[string]bool, len(b.configs))
	var resolve func(name string) error
	resolve = func(name string) error {
		if resolved[name] {
			return nil
		}
		cfg := b.configs[b.byName[name]]
		et := model.types[name]
		if et.base != nil {
			if err := resolve(et.base.name); err != nil {
				return err
			}
		}
		if err := b.resolveProperties(et, cfg); err != nil {
			return err
		}
		resolved[name] = true
		return nil
	}
	for _, cfg := range b.configs {
		if err := resolve(cfg.Name); err != nil {
			return nil, err
		}
	}

	// Keys, then foreign keys, then navigations: each layer references the
	// previous one. Keys resolve base-first so derived types can mirror the
	// shared key space.
	keyDone := make(map[string]bool, len(b.configs))
	var resolveKeys func(name string) error
	resolveKeys = func(name string) error {
		if keyDone[name] {
			return nil
		}
		et := model.types[name]
		if et.base != nil {
			if err := resolveKeys(et.base.name); err != nil {
				return err
			}
		}
		if err := b.resolveKey(model, b.configs[b.byName[name]]); err != nil {
			return err
		}
		keyDone[name] = true
		return nil
	}
	for _, cfg := range b.configs {
		if err := resolveKeys(cfg.Name); err != nil {
			return nil, err
		}
	}
	for _, cfg := range b.configs {
		if err := b.resolveForeignKeys(model, cfg); err != nil {
			return nil, err
		}
	}
	for _, cfg := range b.configs {
		if err := b.resolveNavigations(model, cfg); err != nil {
			return nil, err
		}
	}
	for _, cfg := range b.configs {
		et := model.types[cfg.Name]
		for _, nav := range et.navigations {
			navCfg, ok := b.navConfig(cfg, et, nav.name)
			if !ok || navCfg.Inverse == "" {
				continue
			}
			other := nav.TargetType()
			inv, ok := other.navByName[navCfg.Inverse]
			if !ok {
				return nil, fmt.Errorf("entity %s: navigation %s names unknown inverse %s.%s", cfg.Name, nav.name, other.name, navCfg.Inverse)
			}
			nav.inverse = inv
		}
	}

	model.freeze()
	return model, nil
}

func checkBaseCycle(et *EntityType) error {
	slow, fast := et, et
	for fast != nil && fast.base != nil {
		slow = slow.base
		fast = fast.base.base
		if slow == fast {
			return fmt.Errorf("entity %s: inheritance cycle", et.name)
		}
	}
	return nil
}

// effectiveConfigs walks base-first so inherited members resolve at the same
// indexes on every type in the hierarchy.
func (b *Builder) effectiveConfigs(et *EntityType) []EntityConfig {
	var chain []EntityConfig
	for cur := et; cur != nil; cur = cur.base {
		chain = append([]EntityConfig{b.configs[b.byName[cur.name]]}, chain...)
	}
	return chain
}

func (b *Builder) resolveProperties(et *EntityType, cfg EntityConfig) error {
	for _, layer := range b.effectiveConfigs(et) {
		for _, pc := range layer.Properties {
			if pc.Name == "" {
				return fmt.Errorf("entity %s: property declared without a name", et.name)
			}
			if _, dup := et.byName[pc.Name]; dup {
				return fmt.Errorf("entity %s: property %s declared twice", et.name, pc.Name)
			}
			p := &Property{
				name:          pc.Name,
				index:         len(et.properties),
				declaring:     et,
				nullable:      pc.Nullable,
				storeGen:      pc.StoreGenerated,
				roBeforeSave:  pc.ReadOnlyBeforeSave,
				roAfterSave:   pc.ReadOnlyAfterSave,
				requiresValue: pc.RequiresValueGenerator,
				concurrency:   pc.ConcurrencyToken,
			}
			if pc.Field != "" {
				if et.goType == nil {
					return fmt.Errorf("entity %s: property %s names a backing field but the type has no prototype", et.name, pc.Name)
				}
				f, ok := et.goType.FieldByName(pc.Field)
				if !ok {
					return fmt.Errorf("entity %s: property %s names missing field %s on %s", et.name, pc.Name, pc.Field, et.goType.Name())
				}
				p.fieldIndex = f.Index
				ft := f.Type
				if ft.Kind() == reflect.Pointer {
					p.nullable = true
					ft = ft.Elem()
				}
				p.valueType = ft
			} else {
				p.valueType = pc.Kind.valueType()
				et.shadow++
			}
			et.properties = append(et.properties, p)
			et.byName[pc.Name] = p
		}
	}
	return nil
}

func (b *Builder) resolveKey(model *Model, cfg EntityConfig) error {
	et := model.types[cfg.Name]
	if len(cfg.Key) == 0 {
		if et.base != nil {
			if et.base.key == nil {
				return fmt.Errorf("entity %s: base type %s has no key", et.name, et.base.name)
			}
			// The key space is shared with the base, but the property objects
			// must be this type's own so field access resolves against the
			// derived struct layout.
			key := &Key{declaring: et}
			for _, bp := range et.base.key.properties {
				own := et.byName[bp.name]
				own.key = true
				own.keys = append(own.keys, key)
				key.properties = append(key.properties, own)
			}
			et.key = key
			return nil
		}
		return fmt.Errorf("entity %s: no key declared", et.name)
	}
	if et.base != nil {
		return fmt.Errorf("entity %s: derived types share the base key and cannot declare one", et.name)
	}
	key := &Key{declaring: et}
	for _, name := range cfg.Key {
		p, ok := et.byName[name]
		if !ok {
			return fmt.Errorf("entity %s: key names unknown property %s", et.name, name)
		}
		p.key = true
		p.keys = append(p.keys, key)
		key.properties = append(key.properties, p)
	}
	et.key = key
	return nil
}

func (b *Builder) resolveForeignKeys(model *Model, cfg EntityConfig) error {
	et := model.types[cfg.Name]
	seen := make(map[string]bool)
	for _, layer := range b.effectiveConfigs(et) {
		for _, fkc := range layer.ForeignKeys {
			name := fkc.Name
			if name == "" {
				name = "FK_" + fkc.Principal
			}
			if seen[name] {
				return fmt.Errorf("entity %s: foreign key %s declared twice", et.name, name)
			}
			seen[name] = true
			principal, ok := model.types[fkc.Principal]
			if !ok {
				return fmt.Errorf("entity %s: foreign key %s names unknown principal %s", et.name, name, fkc.Principal)
			}
			if principal.key == nil {
				return fmt.Errorf("entity %s: foreign key %s principal %s has no key", et.name, name, fkc.Principal)
			}
			if len(fkc.Properties) != len(principal.key.properties) {
				return fmt.Errorf("entity %s: foreign key %s has %d properties but principal key %s has %d",
					et.name, name, len(fkc.Properties), fkc.Principal, len(principal.key.properties))
			}
			fk := &ForeignKey{
				name:           name,
				principalKey:   principal.key,
				principalType:  principal,
				dependentType:  et,
				required:       fkc.Required,
				deleteBehavior: fkc.DeleteBehavior,
			}
			for _, pname := range fkc.Properties {
				p, ok := et.byName[pname]
				if !ok {
					return fmt.Errorf("entity %s: foreign key %s names unknown property %s", et.name, name, pname)
				}
				p.foreignKeys = append(p.foreignKeys, fk)
				fk.properties = append(fk.properties, p)
			}
			et.foreignKeys = append(et.foreignKeys, fk)
		}
	}
	return nil
}

func (b *Builder) resolveNavigations(model *Model, cfg EntityConfig) error {
	et := model.types[cfg.Name]
	for _, layer := range b.effectiveConfigs(et) {
		for _, nc := range layer.Navigations {
			if nc.Name == "" || nc.Field == "" {
				return fmt.Errorf("entity %s: navigation requires a name and backing field", et.name)
			}
			if _, dup := et.navByName[nc.Name]; dup {
				return fmt.Errorf("entity %s: navigation %s declared twice", et.name, nc.Name)
			}
			if et.goType == nil {
				return fmt.Errorf("entity %s: navigation %s requires a backing struct", et.name, nc.Name)
			}
			f, ok := et.goType.FieldByName(nc.Field)
			if !ok {
				return fmt.Errorf("entity %s: navigation %s names missing field %s on %s", et.name, nc.Name, nc.Field, et.goType.Name())
			}
			fkOwner := et
			toPrincipal := true
			if nc.Target != "" {
				fkOwner, ok = model.types[nc.Target]
				if !ok {
					return fmt.Errorf("entity %s: navigation %s names unknown target %s", et.name, nc.Name, nc.Target)
				}
				toPrincipal = false
			}
			var fk *ForeignKey
			for _, cand := range fkOwner.foreignKeys {
				if cand.name == nc.ForeignKey {
					fk = cand
					break
				}
			}
			if fk == nil {
				return fmt.Errorf("entity %s: navigation %s names unknown foreign key %s on %s", et.name, nc.Name, nc.ForeignKey, fkOwner.name)
			}
			nav := &Navigation{
				name:       nc.Name,
				index:      len(et.navigations),
				declaring:  et,
				foreignKey: fk,
				collection: nc.Collection,
				toPrincip:  toPrincipal,
				fieldIndex: f.Index,
			}
			et.navigations = append(et.navigations, nav)
			et.navByName[nc.Name] = nav
		}
	}
	return nil
}

func (b *Builder) navConfig(cfg EntityConfig, et *EntityType, name string) (NavigationConfig, bool) {
	for _, layer := range b.effectiveConfigs(et) {
		for _, nc := range layer.Navigations {
			if nc.Name == name {
				return nc, true
			}
		}
	}
	return NavigationConfig{}, false
}
