package trainer

// Builtins returns the built-in plugins in priority order. When a device
// advertises several of these UUIDs, the earlier entry wins.
func Builtins() []Plugin {
	return []Plugin{
		KickrSnapPlugin(),
		FTMSPlugin(),
		FECPlugin(),
	}
}

// RegisterBuiltins registers every built-in plugin into r.
func RegisterBuiltins(r *Registry) error {
	for _, p := range Builtins() {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultRegistry returns a registry holding the built-in plugins.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		return nil, err
	}
	return r, nil
}
