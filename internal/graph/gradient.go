package graph

// Gradient computes symbolic reverse-mode gradients of output with respect to
// each variable in wrt, given outGrad flowing into output.
//
// Contributions are accumulated with the sum-of-paths rule: when a variable
// feeds the output through several paths, the returned gradient is the sum of
// every path's local gradient. Entries for variables with no gradient path
// are nil; callers that need an explicit zero use ZerosLike.
func Gradient(output, outGrad *Variable, wrt []*Variable) []*Variable {
	order := topoSort([]*Variable{output})
	grads := make(map[*Variable]*Variable, len(order))
	grads[output] = outGrad

	// Walk in reverse evaluation order so every node's output gradient is
	// fully accumulated before its arguments receive contributions.
	for i := len(order) - 1; i >= 0; i-- {
		v := order[i]
		g, ok := grads[v]
		if !ok || v.IsPlaceholder() {
			continue
		}
		argGrads := v.op.Grad(v.args, g)
		for j, arg := range v.args {
			if j >= len(argGrads) || argGrads[j] == nil {
				continue
			}
			if existing, ok := grads[arg]; ok {
				grads[arg] = Add(existing, argGrads[j])
			} else {
				grads[arg] = argGrads[j]
			}
		}
	}

	result := make([]*Variable, len(wrt))
	for i, w := range wrt {
		result[i] = grads[w]
	}
	return result
}
