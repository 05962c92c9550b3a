package model

// Fields is an ordered mapping of field name to value. Iteration follows
// insertion order, and overwriting an existing name keeps its position.
type Fields struct {
	names  []string
	values map[string]any
}

// NewFields returns an empty Fields.
func NewFields() *Fields {
	return &Fields{values: make(map[string]any)}
}

// Set assigns value to name, appending name if it is new.
func (f *Fields) Set(name string, value any) {
	if f.values == nil {
		f.values = make(map[string]any)
	}
	if _, ok := f.values[name]; !ok {
		f.names = append(f.names, name)
	}
	f.values[name] = value
}

// Get returns the value stored under name.
func (f *Fields) Get(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.values[name]
	return v, ok
}

// Has reports whether name is present.
func (f *Fields) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

// Delete removes name. Deleting a missing name is a no-op.
func (f *Fields) Delete(name string) {
	if f == nil {
		return
	}
	if _, ok := f.values[name]; !ok {
		return
	}
	delete(f.values, name)
	for i, n := range f.names {
		if n == name {
			f.names = append(f.names[:i], f.names[i+1:]...)
			break
		}
	}
}

// Names returns the field names in order.
func (f *Fields) Names() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.names)
}

// Each calls fn for every field in order, stopping at the first error.
func (f *Fields) Each(fn func(name string, value any) error) error {
	if f == nil {
		return nil
	}
	for _, n := range f.names {
		if err := fn(n, f.values[n]); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a shallow copy.
func (f *Fields) Clone() *Fields {
	out := NewFields()
	if f == nil {
		return out
	}
	for _, n := range f.names {
		out.Set(n, f.values[n])
	}
	return out
}

// Map returns the fields as a plain map. Order is lost.
func (f *Fields) Map() map[string]any {
	out := make(map[string]any, f.Len())
	if f == nil {
		return out
	}
	for k, v := range f.values {
		out[k] = v
	}
	return out
}
