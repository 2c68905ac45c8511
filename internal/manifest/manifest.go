// Package manifest loads CUE bootstrap manifests and applies them to an
// entity service.
//
// A manifest directory holds one CUE package:
//
//	package site
//
//	subtype: object: blog: {
//		class:  "blog_post"
//		public: true
//	}
//	subtype: group: team: {}
//
//	public: ["user", "group"]
//
// Every subtype is registered with its optional class. Subtypes marked
// public, and every type listed under public, are added to the
// registered-type directory.
package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/polystore/internal/entity"
)

// Error codes.
const (
	ErrCodeNotFound    = "M001"
	ErrCodeNoFiles     = "M002"
	ErrCodeLoadFailed  = "M003"
	ErrCodeBuildFailed = "M004"
	ErrCodeInvalid     = "M005"
)

// LoadError is a manifest failure with a CUE position when one is known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Subtype is one subtype declaration.
type Subtype struct {
	Type   entity.Type
	Name   string
	Class  string
	Public bool
}

// Manifest is a loaded manifest. Subtypes are sorted by type then name.
type Manifest struct {
	Subtypes    []Subtype
	PublicTypes []entity.Type
	FileCount   int
}

// Load reads and decodes the CUE package in dir.
func Load(dir string) (*Manifest, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing manifest directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	if err := value.Validate(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("validating CUE value: %v", err)}
	}

	m, err := Decode(value)
	if err != nil {
		return nil, err
	}
	m.FileCount = len(files)
	return m, nil
}

// Decode extracts a Manifest from a built CUE value.
func Decode(value cue.Value) (*Manifest, error) {
	m := &Manifest{}

	if v := value.LookupPath(cue.ParsePath("subtype")); v.Exists() {
		types, err := v.Fields()
		if err != nil {
			return nil, invalid(v, "subtype: %v", err)
		}
		for types.Next() {
			t, err := entity.ParseType(types.Label())
			if err != nil {
				return nil, invalid(types.Value(), "subtype: %v", err)
			}
			names, err := types.Value().Fields()
			if err != nil {
				return nil, invalid(types.Value(), "subtype.%s: %v", t, err)
			}
			for names.Next() {
				st, err := decodeSubtype(t, names.Label(), names.Value())
				if err != nil {
					return nil, err
				}
				m.Subtypes = append(m.Subtypes, st)
			}
		}
	}

	if v := value.LookupPath(cue.ParsePath("public")); v.Exists() {
		list, err := v.List()
		if err != nil {
			return nil, invalid(v, "public: must be a list of type names")
		}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return nil, invalid(list.Value(), "public: %v", err)
			}
			t, err := entity.ParseType(s)
			if err != nil {
				return nil, invalid(list.Value(), "public: %v", err)
			}
			m.PublicTypes = append(m.PublicTypes, t)
		}
	}

	sort.Slice(m.Subtypes, func(i, j int) bool {
		if m.Subtypes[i].Type != m.Subtypes[j].Type {
			return m.Subtypes[i].Type < m.Subtypes[j].Type
		}
		return m.Subtypes[i].Name < m.Subtypes[j].Name
	})
	return m, nil
}

func decodeSubtype(t entity.Type, name string, v cue.Value) (Subtype, error) {
	st := Subtype{Type: t, Name: name}
	if name == "" {
		return st, invalid(v, "subtype.%s: empty subtype name", t)
	}
	if c := v.LookupPath(cue.ParsePath("class")); c.Exists() {
		s, err := c.String()
		if err != nil {
			return st, invalid(c, "subtype.%s.%s.class: %v", t, name, err)
		}
		st.Class = s
	}
	if p := v.LookupPath(cue.ParsePath("public")); p.Exists() {
		b, err := p.Bool()
		if err != nil {
			return st, invalid(p, "subtype.%s.%s.public: %v", t, name, err)
		}
		st.Public = b
	}
	return st, nil
}

func invalid(v cue.Value, format string, args ...any) *LoadError {
	return &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf(format, args...), Pos: v.Pos()}
}

// Target receives manifest registrations. *entities.Service implements it.
type Target interface {
	SubtypeID(ctx context.Context, t entity.Type, name string) (int64, bool, error)
	SubtypeClass(ctx context.Context, t entity.Type, name string) (string, error)
	AddSubtype(ctx context.Context, t entity.Type, name, class string) (int64, error)
	UpdateSubtype(ctx context.Context, t entity.Type, name, class string) (bool, error)
	RegisterType(ctx context.Context, t entity.Type, name string) (bool, error)
}

// Report summarises what Apply changed.
type Report struct {
	Added      []string `json:"added,omitempty"`
	Rebound    []string `json:"rebound,omitempty"`
	Registered []string `json:"registered,omitempty"`
}

// Apply registers every declaration with target. Applying the same manifest
// twice changes nothing. An existing subtype is rebound only when the
// manifest names a different class; an omitted class never clears a binding.
func Apply(ctx context.Context, m *Manifest, target Target) (*Report, error) {
	r := &Report{}
	for _, st := range m.Subtypes {
		key := string(st.Type) + ":" + st.Name

		_, exists, err := target.SubtypeID(ctx, st.Type, st.Name)
		if err != nil {
			return r, fmt.Errorf("apply subtype %s: %w", key, err)
		}
		if !exists {
			if _, err := target.AddSubtype(ctx, st.Type, st.Name, st.Class); err != nil {
				return r, fmt.Errorf("apply subtype %s: %w", key, err)
			}
			r.Added = append(r.Added, key)
		} else if st.Class != "" {
			current, err := target.SubtypeClass(ctx, st.Type, st.Name)
			if err != nil {
				return r, fmt.Errorf("apply subtype %s: %w", key, err)
			}
			if current != st.Class {
				if _, err := target.UpdateSubtype(ctx, st.Type, st.Name, st.Class); err != nil {
					return r, fmt.Errorf("rebind subtype %s: %w", key, err)
				}
				r.Rebound = append(r.Rebound, key)
			}
		}

		if st.Public {
			if _, err := target.RegisterType(ctx, st.Type, st.Name); err != nil {
				return r, fmt.Errorf("register %s: %w", key, err)
			}
			r.Registered = append(r.Registered, key)
		}
	}

	for _, t := range m.PublicTypes {
		if _, err := target.RegisterType(ctx, t, ""); err != nil {
			return r, fmt.Errorf("register %s: %w", t, err)
		}
		r.Registered = append(r.Registered, string(t))
	}
	return r, nil
}
