package registry

import "embed"

//go:embed builtin/*.yaml
var builtinModules embed.FS

// RegisterBuiltins loads the type modules shipped with this module
// itself (currently just sample_artifact, the fixture type the
// end-to-end lifecycle scenarios exercise) into r.
func (r *Registry) RegisterBuiltins() error {
	entries, err := builtinModules.ReadDir("builtin")
	if err != nil {
		return err
	}
	for _, e := range entries {
		data, err := builtinModules.ReadFile("builtin/" + e.Name())
		if err != nil {
			return err
		}
		desc, err := ParseType(data)
		if err != nil {
			return err
		}
		if err := r.Register(desc); err != nil {
			return err
		}
	}
	return nil
}
