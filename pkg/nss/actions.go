package nss

import (
	_ "embed"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

//go:embed actions.toml
var builtinActions []byte

// ActionParam is one parameter of an engine routine.
type ActionParam struct {
	Name    string
	Type    Type
	Default Expr // nil when required
}

// Action is an engine routine, called through the ACTION instruction by ID.
type Action struct {
	ID     int
	Name   string
	Return Type
	Params []ActionParam
}

// Required returns the number of leading parameters without a default.
func (a *Action) Required() int {
	n := 0
	for _, p := range a.Params {
		if p.Default != nil {
			break
		}
		n++
	}
	return n
}

// Actions is an immutable routine table.
type Actions struct {
	list   []*Action
	byName map[string]*Action
	byID   map[int]*Action
}

type actionFile struct {
	Action []struct {
		ID      int    `toml:"id"`
		Name    string `toml:"name"`
		Returns string `toml:"returns"`
		Params  []struct {
			Name    string `toml:"name"`
			Type    string `toml:"type"`
			Default string `toml:"default"`
		} `toml:"params"`
	} `toml:"action"`
}

// LoadActions parses a routine table in the actions.toml layout.
func LoadActions(data []byte) (*Actions, error) {
	var f actionFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse action table")
	}

	t := &Actions{byName: make(map[string]*Action), byID: make(map[int]*Action)}
	for _, raw := range f.Action {
		if raw.Name == "" {
			return nil, errors.Errorf("action %d has no name", raw.ID)
		}
		if raw.ID < 0 || raw.ID > 0xFFFF {
			return nil, errors.Errorf("action %s: id %d out of range", raw.Name, raw.ID)
		}
		if _, dup := t.byName[raw.Name]; dup {
			return nil, errors.Errorf("action %s defined twice", raw.Name)
		}
		if prev, dup := t.byID[raw.ID]; dup {
			return nil, errors.Errorf("action %s reuses id %d of %s", raw.Name, raw.ID, prev.Name)
		}
		ret, ok := ParseType(raw.Returns)
		if !ok {
			return nil, errors.Errorf("action %s: unknown return type %q", raw.Name, raw.Returns)
		}

		a := &Action{ID: raw.ID, Name: raw.Name, Return: ret}
		for _, rp := range raw.Params {
			typ, ok := ParseType(rp.Type)
			if !ok || typ == TypeVoid {
				return nil, errors.Errorf("action %s: parameter %s has bad type %q", raw.Name, rp.Name, rp.Type)
			}
			p := ActionParam{Name: rp.Name, Type: typ}
			if rp.Default != "" {
				x, err := ParseExpr(rp.Default)
				if err != nil {
					return nil, errors.WithMessagef(err, "action %s: default of %s", raw.Name, rp.Name)
				}
				p.Default = x
			} else if len(a.Params) > 0 && a.Params[len(a.Params)-1].Default != nil {
				return nil, errors.Errorf("action %s: required parameter %s follows an optional one", raw.Name, rp.Name)
			}
			a.Params = append(a.Params, p)
		}

		t.list = append(t.list, a)
		t.byName[a.Name] = a
		t.byID[a.ID] = a
	}
	sort.Slice(t.list, func(i, j int) bool { return t.list[i].ID < t.list[j].ID })
	return t, nil
}

// DefaultActions returns the built-in routine table.
var DefaultActions = sync.OnceValue(func() *Actions {
	t, err := LoadActions(builtinActions)
	if err != nil {
		panic(err)
	}
	return t
})

// Lookup finds a routine by name.
func (t *Actions) Lookup(name string) (*Action, bool) {
	a, ok := t.byName[name]
	return a, ok
}

// ByID finds a routine by its ACTION number.
func (t *Actions) ByID(id int) (*Action, bool) {
	a, ok := t.byID[id]
	return a, ok
}

// Len returns the number of routines.
func (t *Actions) Len() int { return len(t.list) }

// All returns the routines ordered by ID.
func (t *Actions) All() []*Action {
	return append([]*Action(nil), t.list...)
}
