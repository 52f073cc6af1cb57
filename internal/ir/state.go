package ir

// State represents the persistent state.
type State struct {
	Version   int              `pkl:"version"`
	Serial    int              `pkl:"serial"`
	Lineage   string           `pkl:"lineage"`
	Resources []*ResourceState `pkl:"resources"`
	Outputs   map[string]any   `pkl:"outputs"`
}

type ResourceState struct {
	Type         string         `pkl:"type"`
	Name         string         `pkl:"name"`
	Provider     string         `pkl:"provider"`
	Inputs       map[string]any `pkl:"inputs"` // declared, references unresolved
	InputsHash   string         `pkl:"inputsHash"`
	Outputs      map[string]any `pkl:"outputs"` // provider returned
	Dependencies []string       `pkl:"dependencies"`
}

// Addr returns the resource address (type.name).
func (r *ResourceState) Addr() string {
	return Addr(r.Type, r.Name)
}

// Find returns the state entry for an address, or nil.
func (s *State) Find(addr string) *ResourceState {
	for _, res := range s.Resources {
		if res.Addr() == addr {
			return res
		}
	}
	return nil
}
