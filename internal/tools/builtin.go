package tools

// RegisterBuiltins registers the builtin tools in the given registry:
// expr.eval, jq, cel.eval, and http.request. Domain tools (chemistry
// computations, database lookups) are expected to be registered by the
// caller alongside these.
func RegisterBuiltins(reg *MapRegistry, httpCfg HTTPConfig) error {
	celTool, err := NewCELTool()
	if err != nil {
		return err
	}

	all := []Tool{
		NewExprTool(),
		NewJQTool(),
		celTool,
		NewHTTPTool(httpCfg),
	}

	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
