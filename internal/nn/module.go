// Package nn implements the trainable layers of the tagger.
//
// This package provides the building blocks the ID-CNN is assembled from:
//   - Parameter: named trainable tensor with its gradient
//   - Initializers: weight initialization keyed by tag (xavier, he, identity, ...)
//   - Embedding: token lookup table with a fixed zero row for padding
//   - Linear: dense layer applied over the last dimension
//   - DilatedConv: 1×width atrous convolution with "same" padding
//
// Layers run through an *autodiff.GradientTape; a nil tape evaluates them
// without recording.
package nn

// Layer is implemented by every component owning parameters.
type Layer interface {
	// Parameters returns the trainable parameters of the layer, in a stable order.
	Parameters() []*Parameter
}

// CollectParameters flattens the parameters of several layers.
func CollectParameters(layers ...Layer) []*Parameter {
	var params []*Parameter
	for _, l := range layers {
		params = append(params, l.Parameters()...)
	}
	return params
}
