package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/2024aa05820/mlops-assignment2/pkg/tensor"
)

// Channel widths of the four convolutional blocks. The input is
// always 3-channel RGB.
var convChannels = [4]int{32, 64, 128, 256}

const (
	inputChannels  = 3
	hiddenFeatures = 128
)

// Classifier is a compact CNN for image classification: four
// conv/batchnorm/relu/maxpool blocks, global average pooling, and a
// two-layer head. Around 420K parameters at any input resolution,
// since the head sits behind the global pool.
type Classifier struct {
	NumClasses int

	convs [4]*Conv2D
	bns   [4]*BatchNorm2D
	pools [4]*MaxPool2D

	fc1  *Linear
	fc2  *Linear
	drop *Dropout

	training bool
	cache    *fwdCache
}

// fwdCache keeps the intermediate tensors of the last training
// forward so Backward can replay the chain.
type fwdCache struct {
	blockIn [4]*tensor.Tensor // conv inputs
	bnOut   [4]*tensor.Tensor // relu inputs
	poolIn  [4]*tensor.Tensor // relu outputs

	gapInShape []int
	gapOut     *tensor.Tensor // fc1 input
	fc1Out     *tensor.Tensor // head relu input
	fc2In      *tensor.Tensor // dropout output
}

// New builds a classifier with Kaiming-normal initialized weights
// drawn from rng.
func New(numClasses int, dropout float64, rng *rand.Rand) *Classifier {
	if numClasses < 2 {
		panic(fmt.Sprintf("nn: need at least 2 classes, got %d", numClasses))
	}
	c := &Classifier{
		NumClasses: numClasses,
		fc1:        newLinear("fc1", convChannels[3], hiddenFeatures),
		fc2:        newLinear("fc2", hiddenFeatures, numClasses),
		drop:       newDropout(dropout),
	}
	in := inputChannels
	for i, out := range convChannels {
		c.convs[i] = newConv2D(fmt.Sprintf("conv%d", i+1), in, out)
		c.bns[i] = newBatchNorm2D(fmt.Sprintf("bn%d", i+1), out)
		c.pools[i] = newMaxPool2D()
		in = out
	}
	c.initWeights(rng)
	return c
}

// initWeights applies Kaiming-normal (fan-out) initialization to conv
// and linear weights. Biases stay zero; batchnorm starts as identity.
func (c *Classifier) initWeights(rng *rand.Rand) {
	for _, conv := range c.convs {
		fanOut := conv.OutChannels * kernelSize * kernelSize
		std := math.Sqrt(2 / float64(fanOut))
		d := conv.Weight.Value.Data()
		for i := range d {
			d[i] = rng.NormFloat64() * std
		}
	}
	for _, fc := range []*Linear{c.fc1, c.fc2} {
		std := math.Sqrt(2 / float64(fc.OutFeatures))
		d := fc.Weight.Value.Data()
		for i := range d {
			d[i] = rng.NormFloat64() * std
		}
	}
}

// Train switches to training mode: batch statistics, dropout, and
// gradient buffers on every parameter.
func (c *Classifier) Train() {
	c.training = true
	for _, p := range c.Parameters() {
		p.ensureGrad()
	}
}

// Eval switches to inference mode and releases gradient state.
func (c *Classifier) Eval() {
	c.training = false
	c.cache = nil
	for _, p := range c.Parameters() {
		p.dropGrad()
	}
}

// Training reports whether the model is in training mode.
func (c *Classifier) Training() bool { return c.training }

// ZeroGrad clears all gradient buffers.
func (c *Classifier) ZeroGrad() {
	for _, p := range c.Parameters() {
		p.ZeroGrad()
	}
}

// Forward runs an inference pass on x (N, 3, H, W) and returns raw
// logits (N, NumClasses). H and W must survive four halvings.
func (c *Classifier) Forward(x *tensor.Tensor, workers int) *tensor.Tensor {
	h := x
	for i := range c.convs {
		h = c.convs[i].Forward(h, workers)
		h = c.bns[i].Forward(h, workers)
		h = ReLU(h)
		h = c.pools[i].Forward(h, workers)
	}
	h = GlobalAvgPool(h, workers)
	h = c.fc1.Forward(h, workers)
	h = ReLU(h)
	h = c.fc2.Forward(h, workers)
	return h
}

// ForwardTraining runs a training pass: batch statistics, dropout
// sampled from rng, and a cache for Backward. The model must be in
// training mode.
func (c *Classifier) ForwardTraining(x *tensor.Tensor, rng *rand.Rand, workers int) *tensor.Tensor {
	if !c.training {
		panic("nn: ForwardTraining on a model in eval mode")
	}
	cache := &fwdCache{}

	h := x
	for i := range c.convs {
		cache.blockIn[i] = h
		h = c.convs[i].Forward(h, workers)
		h = c.bns[i].ForwardTraining(h, workers)
		cache.bnOut[i] = h
		h = ReLU(h)
		cache.poolIn[i] = h
		h = c.pools[i].ForwardTraining(h, workers)
	}

	cache.gapInShape = h.Shape()
	h = GlobalAvgPool(h, workers)
	cache.gapOut = h

	h = c.fc1.Forward(h, workers)
	cache.fc1Out = h
	h = ReLU(h)
	h = c.drop.ForwardTraining(h, rng)
	cache.fc2In = h
	h = c.fc2.Forward(h, workers)

	c.cache = cache
	return h
}

// Backward propagates the logit gradient through the network,
// accumulating parameter gradients. Must follow a ForwardTraining on
// the same batch.
func (c *Classifier) Backward(gradLogits *tensor.Tensor, workers int) {
	cache := c.cache
	if cache == nil {
		panic("nn: Backward called without ForwardTraining")
	}
	c.cache = nil

	g := c.fc2.Backward(cache.fc2In, gradLogits, workers)
	g = c.drop.Backward(g)
	g = reluBackward(cache.fc1Out, g)
	g = c.fc1.Backward(cache.gapOut, g, workers)

	s := cache.gapInShape
	g = globalAvgPoolBackward(g, s[0], s[1], s[2], s[3])

	for i := len(c.convs) - 1; i >= 0; i-- {
		g = c.pools[i].Backward(g)
		g = reluBackward(cache.poolIn[i], g)
		g = c.bns[i].Backward(g, workers)
		g = c.convs[i].Backward(cache.blockIn[i], g, workers)
	}
}

// PredictProba runs an inference pass and returns per-class
// probabilities (N, NumClasses).
func (c *Classifier) PredictProba(x *tensor.Tensor, workers int) *tensor.Tensor {
	return tensor.Softmax(c.Forward(x, workers))
}

// Predict returns the argmax class index per sample.
func (c *Classifier) Predict(x *tensor.Tensor, workers int) []int {
	return tensor.Argmax(c.Forward(x, workers))
}

// Parameters returns every trainable parameter in a stable order.
func (c *Classifier) Parameters() []*Parameter {
	params := make([]*Parameter, 0, 4*4+4)
	for i := range c.convs {
		params = append(params,
			c.convs[i].Weight, c.convs[i].Bias,
			c.bns[i].Gamma, c.bns[i].Beta)
	}
	params = append(params, c.fc1.Weight, c.fc1.Bias, c.fc2.Weight, c.fc2.Bias)
	return params
}

// NumParameters counts trainable scalars.
func (c *Classifier) NumParameters() int {
	total := 0
	for _, p := range c.Parameters() {
		total += p.Value.Size()
	}
	return total
}

// StateDict exports every parameter and batchnorm running statistic
// under PyTorch-style keys. Tensors are cloned, so mutating the dict
// does not touch the model.
func (c *Classifier) StateDict() map[string]*tensor.Tensor {
	dict := make(map[string]*tensor.Tensor, 22)
	for i := range c.convs {
		n := i + 1
		dict[fmt.Sprintf("conv%d.weight", n)] = c.convs[i].Weight.Value.Clone()
		dict[fmt.Sprintf("conv%d.bias", n)] = c.convs[i].Bias.Value.Clone()
		dict[fmt.Sprintf("bn%d.weight", n)] = c.bns[i].Gamma.Value.Clone()
		dict[fmt.Sprintf("bn%d.bias", n)] = c.bns[i].Beta.Value.Clone()
		dict[fmt.Sprintf("bn%d.running_mean", n)] = c.bns[i].RunningMean.Clone()
		dict[fmt.Sprintf("bn%d.running_var", n)] = c.bns[i].RunningVar.Clone()
	}
	dict["fc1.weight"] = c.fc1.Weight.Value.Clone()
	dict["fc1.bias"] = c.fc1.Bias.Value.Clone()
	dict["fc2.weight"] = c.fc2.Weight.Value.Clone()
	dict["fc2.bias"] = c.fc2.Bias.Value.Clone()
	return dict
}

// LoadStateDict restores parameters and running statistics from dict.
// Every key must be present with a matching shape, and no extra keys
// are tolerated.
func (c *Classifier) LoadStateDict(dict map[string]*tensor.Tensor) error {
	targets := make(map[string]*tensor.Tensor, 22)
	for i := range c.convs {
		n := i + 1
		targets[fmt.Sprintf("conv%d.weight", n)] = c.convs[i].Weight.Value
		targets[fmt.Sprintf("conv%d.bias", n)] = c.convs[i].Bias.Value
		targets[fmt.Sprintf("bn%d.weight", n)] = c.bns[i].Gamma.Value
		targets[fmt.Sprintf("bn%d.bias", n)] = c.bns[i].Beta.Value
		targets[fmt.Sprintf("bn%d.running_mean", n)] = c.bns[i].RunningMean
		targets[fmt.Sprintf("bn%d.running_var", n)] = c.bns[i].RunningVar
	}
	targets["fc1.weight"] = c.fc1.Weight.Value
	targets["fc1.bias"] = c.fc1.Bias.Value
	targets["fc2.weight"] = c.fc2.Weight.Value
	targets["fc2.bias"] = c.fc2.Bias.Value

	for key := range dict {
		if _, ok := targets[key]; !ok {
			return errors.Errorf("unexpected state dict key %q", key)
		}
	}
	for key, dst := range targets {
		src, ok := dict[key]
		if !ok {
			return errors.Errorf("state dict missing key %q", key)
		}
		if !dst.ShapeEquals(src.Shape()) {
			return errors.Errorf("state dict key %q has shape %v, want %v", key, src.Shape(), dst.Shape())
		}
	}
	for key, dst := range targets {
		copy(dst.Data(), dict[key].Data())
	}
	return nil
}
