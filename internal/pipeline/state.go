package pipeline

// State is the shared record threaded through one pipeline execution. It is
// scoped to a single invocation; concurrent runs never share a State.
// Mutation happens only through Merge, which replaces whole fields. A field
// is never removed, only overwritten by a later stage.
type State map[string]any

// Clone makes a shallow copy. Field values are shared; stages treat them as
// immutable and publish replacements instead of editing in place.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge shallow-merges delta into s: new keys are added, existing keys are
// overwritten, everything else stays untouched.
func (s State) Merge(delta State) {
	for k, v := range delta {
		s[k] = v
	}
}

// String returns the string stored under key, or "" when absent or of
// another type.
func (s State) String(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// StringSlice returns the string slice stored under key. []any values with
// string elements are converted; anything else yields nil.
func (s State) StringSlice(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, str)
		}
		return out
	default:
		return nil
	}
}
