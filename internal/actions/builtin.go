package actions

// Builtins returns the six built-in handlers wired to deps.
func Builtins(deps Deps) []Action {
	deps = deps.withDefaults()
	return []Action{
		NewNotifyAction(deps),
		NewAutoAssignAction(deps),
		NewEscalateAction(deps),
		NewAutoApproveAction(deps),
		NewCreateTaskAction(deps),
		NewUpdateStatusAction(deps),
	}
}

// RegisterBuiltins registers all built-in handlers in the given registry.
func RegisterBuiltins(reg *Registry, deps Deps) error {
	for _, a := range Builtins(deps) {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}
