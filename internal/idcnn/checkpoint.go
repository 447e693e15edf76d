package idcnn

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/born-ml/idcnn/internal/serialization"
	"github.com/born-ml/idcnn/internal/tensor"
)

// StateDict returns every distinct parameter under its name, in the order
// of Parameters.
func (m *Model) StateDict() []serialization.NamedTensor {
	params := m.Parameters()
	out := make([]serialization.NamedTensor, len(params))
	for i, p := range params {
		out[i] = serialization.NamedTensor{Name: p.Name(), Tensor: p.Tensor()}
	}
	return out
}

// LoadStateDict copies values into the model's parameters. The names and
// shapes must match the model exactly.
func (m *Model) LoadStateDict(tensors map[string]*tensor.Tensor) error {
	params := m.Parameters()
	if len(tensors) != len(params) {
		return fmt.Errorf("%w: state has %d tensors, model has %d parameters", ErrShapeMismatch, len(tensors), len(params))
	}
	for _, p := range params {
		src, ok := tensors[p.Name()]
		if !ok {
			return fmt.Errorf("%w: missing parameter %q", ErrShapeMismatch, p.Name())
		}
		if !src.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("%w: parameter %q has shape %v, stored %v",
				ErrShapeMismatch, p.Name(), p.Tensor().Shape(), src.Shape())
		}
	}
	for _, p := range params {
		p.Tensor().CopyFrom(tensors[p.Name()])
	}
	return nil
}

// Save writes the model's configuration and parameters to path. header may
// carry run and training metadata; its tensor list is replaced.
func (m *Model) Save(path string, header serialization.Header) error {
	network, err := json.Marshal(m.Config)
	if err != nil {
		return fmt.Errorf("failed to encode network config: %w", err)
	}
	header.Network = network
	return serialization.WriteFile(path, header, m.StateDict())
}

// Load rebuilds a model from a checkpoint written by Save.
func Load(path string) (*Model, *serialization.Checkpoint, error) {
	ckpt, err := serialization.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := FromCheckpoint(ckpt)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, ckpt, nil
}

// FromCheckpoint builds the network described by ckpt and loads its values.
func FromCheckpoint(ckpt *serialization.Checkpoint) (*Model, error) {
	if len(ckpt.Header.Network) == 0 {
		return nil, fmt.Errorf("%w: checkpoint has no network config", ErrConfiguration)
	}
	var cfg NetworkConfig
	if err := json.Unmarshal(ckpt.Header.Network, &cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding network config: %w", ErrConfiguration, err)
	}
	// Initial values are overwritten below.
	m, err := Build(cfg, nil, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	if err := m.LoadStateDict(ckpt.Tensors); err != nil {
		return nil, err
	}
	return m, nil
}
