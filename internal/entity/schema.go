package entity

// ExtensionSchema describes the per-type extension table.
type ExtensionSchema struct {
	Table   string
	Columns []string // excluding id
}

var extensionSchemas = map[Type]ExtensionSchema{
	TypeObject: {Table: "objects", Columns: []string{"title", "description"}},
	TypeUser:   {Table: "users", Columns: []string{"name", "username", "email", "language", "banned", "admin", "last_login"}},
	TypeGroup:  {Table: "groups", Columns: []string{"name", "description"}},
	TypeSite:   {Table: "sites", Columns: []string{"name", "description", "url"}},
}

// BaseColumns lists the columns of the entities table in schema order.
var BaseColumns = []string{
	"id", "type", "subtype_id", "owner_id", "container_id", "access_level",
	"created_time", "updated_time", "last_action_time", "enabled",
}

// Extension returns the extension schema for t.
func Extension(t Type) (ExtensionSchema, bool) {
	s, ok := extensionSchemas[t]
	return s, ok
}

// HasColumn reports whether the extension table has the named column.
func (s ExtensionSchema) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// IsBaseColumn reports whether name is a column of the entities table.
func IsBaseColumn(name string) bool {
	for _, c := range BaseColumns {
		if c == name {
			return true
		}
	}
	return false
}
