package graph

// Clone returns a structurally identical graph whose variables all have
// fresh identities. suffix is appended to the graph and placeholder names.
//
// The gradient constructor never differentiates a loop's own inner variables
// directly; it works on a clone so the forward graph stays untouched.
func (g *Graph) Clone(suffix string) *Graph {
	memo := make(map[*Variable]*Variable)
	var cloneVar func(v *Variable) *Variable
	cloneVar = func(v *Variable) *Variable {
		if nv, ok := memo[v]; ok {
			return nv
		}
		nv := &Variable{
			name:  v.name,
			shape: v.shape.Clone(),
			dtype: v.dtype,
			op:    v.op,
		}
		if v.IsPlaceholder() {
			nv.name = v.name + suffix
		} else {
			nv.args = make([]*Variable, len(v.args))
			for i, a := range v.args {
				nv.args[i] = cloneVar(a)
			}
		}
		memo[v] = nv
		return nv
	}

	inputs := make([]*Variable, len(g.inputs))
	for i, in := range g.inputs {
		inputs[i] = cloneVar(in)
	}
	outputs := make([]*Variable, len(g.outputs))
	for i, out := range g.outputs {
		outputs[i] = cloneVar(out)
	}
	return &Graph{name: g.name + suffix, inputs: inputs, outputs: outputs}
}
