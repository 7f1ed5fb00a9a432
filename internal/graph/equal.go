package graph

import "bytes"

// EqualComputations reports whether two graphs denote the same computation:
// same slot structure, and outputs built from the same operations applied to
// corresponding inputs. Variable identities and names are ignored.
func EqualComputations(a, b *Graph) bool {
	if len(a.inputs) != len(b.inputs) || len(a.outputs) != len(b.outputs) {
		return false
	}
	pairing := make(map[*Variable]*Variable, len(a.inputs))
	for i, av := range a.inputs {
		pairing[av] = b.inputs[i]
	}
	for i := range a.outputs {
		if !equalVars(a.outputs[i], b.outputs[i], pairing) {
			return false
		}
	}
	return true
}

func equalVars(a, b *Variable, pairing map[*Variable]*Variable) bool {
	if paired, ok := pairing[a]; ok {
		return paired == b
	}
	if a.IsPlaceholder() || b.IsPlaceholder() {
		// Unpaired placeholders cannot correspond.
		return false
	}
	if a.op.Name() != b.op.Name() || len(a.args) != len(b.args) {
		return false
	}
	if a.dtype != b.dtype || !a.shape.Equal(b.shape) {
		return false
	}
	ca, aIsConst := a.op.(constOp)
	cb, bIsConst := b.op.(constOp)
	if aIsConst != bIsConst {
		return false
	}
	if aIsConst {
		if ca.value.DType() != cb.value.DType() ||
			!ca.value.Shape().Equal(cb.value.Shape()) ||
			!bytes.Equal(ca.value.Data(), cb.value.Data()) {
			return false
		}
	}
	la, aIsLE := a.op.(lessEqualOp)
	lb, bIsLE := b.op.(lessEqualOp)
	if aIsLE != bIsLE || (aIsLE && la.threshold != lb.threshold) {
		return false
	}
	for i := range a.args {
		if !equalVars(a.args[i], b.args[i], pairing) {
			return false
		}
	}
	pairing[a] = b
	return true
}
