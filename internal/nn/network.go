// Package nn implements the small fully-connected tanh networks used by
// trading agents and corporate decision logic.
//
// Every layer, including the output layer, uses the hyperbolic tangent, so
// outputs are always in (-1, 1). Training is single-sample online gradient
// descent with no momentum and no regularization.
package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

var (
	// ErrInputSize is returned when an input vector does not match the
	// width of the first layer.
	ErrInputSize = errors.New("nn: input length does not match input layer width")

	// ErrTopology is returned for networks with fewer than two layers or a
	// non-positive layer width.
	ErrTopology = errors.New("nn: invalid layer sizes")
)

// initScale bounds the uniform range of initial weights and biases.
const initScale = 0.1

// Network is a feed-forward network. Weights[l][i][j] connects neuron i of
// layer l to neuron j of layer l+1.
type Network struct {
	LayerSizes []int         `json:"layer_sizes"`
	Weights    [][][]float64 `json:"weights"`
	Biases     [][]float64   `json:"biases"`
	InputNames []string      `json:"input_names,omitempty"`
}

// New creates a network with weights and biases drawn uniformly from
// [-0.1, 0.1).
func New(layerSizes []int, inputNames []string, rng *rand.Rand) (*Network, error) {
	if len(layerSizes) < 2 {
		return nil, ErrTopology
	}
	for _, n := range layerSizes {
		if n <= 0 {
			return nil, ErrTopology
		}
	}

	n := &Network{
		LayerSizes: append([]int(nil), layerSizes...),
		InputNames: append([]string(nil), inputNames...),
	}
	for l := 0; l < len(layerSizes)-1; l++ {
		in, out := layerSizes[l], layerSizes[l+1]
		w := make([][]float64, in)
		for i := range w {
			w[i] = make([]float64, out)
			for j := range w[i] {
				w[i][j] = (rng.Float64()*2 - 1) * initScale
			}
		}
		b := make([]float64, out)
		for j := range b {
			b[j] = (rng.Float64()*2 - 1) * initScale
		}
		n.Weights = append(n.Weights, w)
		n.Biases = append(n.Biases, b)
	}
	return n, nil
}

// MustNew is like New but panics on an invalid topology. Intended for
// topologies taken from validated configuration.
func MustNew(layerSizes []int, inputNames []string, rng *rand.Rand) *Network {
	n, err := New(layerSizes, inputNames, rng)
	if err != nil {
		panic(fmt.Sprintf("nn: %v (sizes %v)", err, layerSizes))
	}
	return n
}

// InputSize returns the width of the input layer.
func (n *Network) InputSize() int {
	if len(n.LayerSizes) == 0 {
		return 0
	}
	return n.LayerSizes[0]
}

// FeedForward propagates inputs through the network and returns the
// activations of the output layer.
func (n *Network) FeedForward(inputs []float64) ([]float64, error) {
	if len(inputs) != n.InputSize() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(inputs), n.InputSize())
	}
	acts := n.forward(inputs)
	return acts[len(acts)-1], nil
}

// Score is a convenience for single-output networks. It returns 0 when the
// input width is wrong.
func (n *Network) Score(inputs []float64) float64 {
	out, err := n.FeedForward(inputs)
	if err != nil || len(out) == 0 {
		return 0
	}
	return out[0]
}

// forward returns the activations of every layer, input layer first.
func (n *Network) forward(inputs []float64) [][]float64 {
	acts := make([][]float64, 0, len(n.LayerSizes))
	cur := append([]float64(nil), inputs...)
	acts = append(acts, cur)

	for l, w := range n.Weights {
		b := n.Biases[l]
		next := make([]float64, n.LayerSizes[l+1])
		for j := range next {
			sum := b[j]
			for i, a := range cur {
				sum += a * w[i][j]
			}
			next[j] = math.Tanh(sum)
		}
		acts = append(acts, next)
		cur = next
	}
	return acts
}

// Backpropagate performs one gradient step towards targets. Errors are
// propagated through the pre-update weights of each layer.
func (n *Network) Backpropagate(inputs, targets []float64, learningRate float64) error {
	if len(inputs) != n.InputSize() {
		return fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(inputs), n.InputSize())
	}
	acts := n.forward(inputs)
	output := acts[len(acts)-1]
	if len(targets) != len(output) {
		return fmt.Errorf("nn: target length %d does not match output width %d", len(targets), len(output))
	}

	errs := make([]float64, len(output))
	for j := range output {
		errs[j] = targets[j] - output[j]
	}

	for l := len(n.Weights) - 1; l >= 0; l-- {
		prev := acts[l]
		cur := acts[l+1]
		w := n.Weights[l]

		grads := make([]float64, len(cur))
		for j, y := range cur {
			grads[j] = errs[j] * (1 - y*y)
		}

		nextErrs := make([]float64, len(prev))
		for i := range prev {
			var sum float64
			for j, g := range grads {
				sum += w[i][j] * g
			}
			nextErrs[i] = sum
		}

		for i, a := range prev {
			for j, g := range grads {
				w[i][j] += g * a * learningRate
			}
		}
		for j, g := range grads {
			n.Biases[l][j] += g * learningRate
		}

		errs = nextErrs
	}
	return nil
}

// InputLayerWeights returns, for each named input, the mean absolute weight
// of its connections into the first hidden layer.
func (n *Network) InputLayerWeights() map[string]float64 {
	out := make(map[string]float64, len(n.InputNames))
	if len(n.InputNames) == 0 || len(n.Weights) == 0 {
		return out
	}
	first := n.Weights[0]
	for i, name := range n.InputNames {
		if i >= len(first) || len(first[i]) == 0 {
			continue
		}
		var sum float64
		for _, w := range first[i] {
			sum += math.Abs(w)
		}
		out[name] = sum / float64(len(first[i]))
	}
	return out
}

// OutputLayerWeights returns the raw weights from the last hidden layer into
// the first output neuron, keyed "H{layer}_{neuron}".
func (n *Network) OutputLayerWeights() map[string]float64 {
	out := make(map[string]float64)
	if len(n.LayerSizes) < 2 || len(n.Weights) == 0 {
		return out
	}
	lastHidden := len(n.LayerSizes) - 2
	last := n.Weights[len(n.Weights)-1]
	for i, row := range last {
		if len(row) == 0 {
			continue
		}
		out[fmt.Sprintf("H%d_%d", lastHidden, i+1)] = row[0]
	}
	return out
}

// Clone returns a deep copy.
func (n *Network) Clone() *Network {
	if n == nil {
		return nil
	}
	c := &Network{
		LayerSizes: append([]int(nil), n.LayerSizes...),
		InputNames: append([]string(nil), n.InputNames...),
		Weights:    make([][][]float64, len(n.Weights)),
		Biases:     make([][]float64, len(n.Biases)),
	}
	for l, w := range n.Weights {
		c.Weights[l] = make([][]float64, len(w))
		for i, row := range w {
			c.Weights[l][i] = append([]float64(nil), row...)
		}
	}
	for l, b := range n.Biases {
		c.Biases[l] = append([]float64(nil), b...)
	}
	return c
}
