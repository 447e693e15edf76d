package autodiff

import (
	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/tensor"
)

// Gradients maps a tensor to the gradient of the differentiated output with
// respect to it.
type Gradients map[*tensor.Tensor]*tensor.Tensor

// Of returns the gradient of t, or nil when t did not influence the output.
func (g Gradients) Of(t *tensor.Tensor) *tensor.Tensor {
	return g[t]
}

// GradientTape records operations during the forward pass and computes
// gradients during the backward pass using reverse-mode automatic differentiation.
//
// Usage:
//
//	tape := autodiff.NewGradientTape()
//	tape.StartRecording()
//	// ... perform operations through the tape ...
//	grads := tape.Backward(loss)
//
// A nil *GradientTape is valid: operations run forward and nothing is recorded.
type GradientTape struct {
	operations []ops.Operation // Recorded operations (in execution order)
	recording  bool            // Whether tape is currently recording
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]ops.Operation, 0, 64),
		recording:  false,
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *GradientTape) IsRecording() bool {
	return t != nil && t.recording
}

// Record adds an operation to the tape.
// Only records if the tape is currently recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.IsRecording() {
		t.operations = append(t.operations, op)
	}
}

// Clear resets the tape, removing all recorded operations.
// Recording state is preserved.
func (t *GradientTape) Clear() {
	t.operations = t.operations[:0]
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	if t == nil {
		return 0
	}
	return len(t.operations)
}

// Backward differentiates output with respect to every tensor that fed into
// it, seeding the walk with a gradient of ones.
//
// Algorithm:
//  1. Seed grads[output] with ones (1 for a scalar loss)
//  2. Walk operations in reverse order
//  3. For each operation whose output has a gradient, compute input gradients
//  4. Accumulate gradients when the same tensor is used multiple times
func (t *GradientTape) Backward(output *tensor.Tensor) Gradients {
	grads := Gradients{output: tensor.Full(output.Shape(), 1)}
	if t == nil {
		return grads
	}

	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		outGrad, ok := grads[op.Output()]
		if !ok {
			continue
		}
		inputGrads := op.Backward(outGrad)
		for j, input := range op.Inputs() {
			if j >= len(inputGrads) || inputGrads[j] == nil {
				continue
			}
			accumulate(grads, input, inputGrads[j])
		}
	}

	return grads
}

// accumulate adds g to the gradient of input. Gradients handed out by
// operations may share memory, so sums are always written to a fresh tensor.
func accumulate(grads Gradients, input, g *tensor.Tensor) {
	existing, ok := grads[input]
	if !ok {
		grads[input] = g
		return
	}
	sum := existing.Clone()
	sum.AddInPlace(g)
	grads[input] = sum
}
