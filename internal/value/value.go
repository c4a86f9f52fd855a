package value

import (
	"slices"
	"unicode/utf16"
)

// Kind identifies the concrete type behind a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "boolean",
	KindInt:    "integer",
	KindFloat:  "float",
	KindString: "string",
	KindArray:  "array",
	KindObject: "object",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Value is a sealed interface over the JSON value kinds.
// Only Null, Bool, Int, Float, String, Array and *Object implement it.
type Value interface {
	Kind() Kind
	isValue() // Sealed
}

// Null represents JSON null.
type Null struct{}

func (Null) Kind() Kind { return KindNull }
func (Null) isValue()   {}

// Bool represents a JSON boolean.
type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (Bool) isValue()   {}

// Int represents a JSON number without fraction or exponent that fits int64.
type Int int64

func (Int) Kind() Kind { return KindInt }
func (Int) isValue()   {}

// Float represents any other JSON number.
type Float float64

func (Float) Kind() Kind { return KindFloat }
func (Float) isValue()   {}

// String represents a JSON string.
type String string

func (String) Kind() Kind { return KindString }
func (String) isValue()   {}

// Array represents an ordered sequence of values.
type Array []Value

func (Array) Kind() Kind { return KindArray }
func (Array) isValue()   {}

// NewArray creates an Array from values.
func NewArray(vals ...Value) Array {
	if vals == nil {
		return Array{}
	}
	return Array(vals)
}

// Member is a single key/value entry of an Object.
type Member struct {
	Key   string
	Value Value
}

// M is a shorthand for Member.
// Example: NewObject(M("name", String("cart")), M("count", Int(5)))
func M(key string, v Value) Member {
	return Member{Key: key, Value: v}
}

// Object is a string-keyed mapping that remembers insertion order.
// The zero value is not usable; construct with NewObject.
type Object struct {
	members []Member
	index   map[string]int
}

func (*Object) Kind() Kind { return KindObject }
func (*Object) isValue()   {}

// NewObject creates an Object from members in order.
// A repeated key overwrites the earlier value but keeps the earlier position.
func NewObject(members ...Member) *Object {
	obj := &Object{
		members: make([]Member, 0, len(members)),
		index:   make(map[string]int, len(members)),
	}
	for _, m := range members {
		obj.Set(m.Key, m.Value)
	}
	return obj
}

// Set stores v under key.
func (o *Object) Set(key string, v Value) {
	if v == nil {
		v = Null{}
	}
	if i, ok := o.index[key]; ok {
		o.members[i].Value = v
		return
	}
	o.index[key] = len(o.members)
	o.members = append(o.members, Member{Key: key, Value: v})
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	i, ok := o.index[key]
	if !ok {
		return nil, false
	}
	return o.members[i].Value, true
}

// Delete removes key and reports whether it was present.
func (o *Object) Delete(key string) bool {
	i, ok := o.index[key]
	if !ok {
		return false
	}
	o.members = slices.Delete(o.members, i, i+1)
	delete(o.index, key)
	for j := i; j < len(o.members); j++ {
		o.index[o.members[j].Key] = j
	}
	return true
}

// Len returns the number of members.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.members)
}

// Keys returns keys in insertion order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.Len())
	if o == nil {
		return keys
	}
	for _, m := range o.members {
		keys = append(keys, m.Key)
	}
	return keys
}

// Members returns a copy of the members in insertion order.
func (o *Object) Members() []Member {
	if o == nil {
		return []Member{}
	}
	return slices.Clone(o.members)
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's string comparison works on UTF-8 bytes, which orders differently
// once characters outside the BMP are involved.
func (o *Object) SortedKeys() []string {
	keys := o.Keys()
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// SortKeys sorts keys in place in RFC 8785 order.
func SortKeys(keys []string) {
	slices.SortFunc(keys, compareKeysRFC8785)
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
