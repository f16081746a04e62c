package layers

import (
	"errors"
	"fmt"

	"hconv/core/arith"
	"hconv/core/ckkswrapper"
	"hconv/core/hetensor"
	"hconv/tensor"
)

var (
	// ErrUnsupportedConfig is wrapped by every construction-time rejection.
	ErrUnsupportedConfig = errors.New("conv2d: unsupported configuration")
	// ErrInputShape is wrapped when an input does not fit the layer.
	ErrInputShape = errors.New("conv2d: invalid input shape")
)

// PaddingZeros is the only supported padding mode.
const PaddingZeros = "zeros"

// Conv2DConfig mirrors the usual 2D convolution constructor arguments. Only
// one input channel, stride 1, no padding, no dilation and a single group are
// supported; NewConv2D rejects anything else.
type Conv2DConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int
	Dilation    int
	Groups      int
	Bias        bool
	PaddingMode string

	// Seed makes parameter initialization reproducible when set.
	Seed *uint64
}

// NewConv2DConfig returns a config with every optional argument at its default.
func NewConv2DConfig(inChannels, outChannels, kernelSize int) Conv2DConfig {
	return Conv2DConfig{
		InChannels:  inChannels,
		OutChannels: outChannels,
		KernelSize:  kernelSize,
		Stride:      1,
		Padding:     0,
		Dilation:    1,
		Groups:      1,
		PaddingMode: PaddingZeros,
	}
}

// WithSeed returns a copy of cfg with a fixed initialization seed.
func (cfg Conv2DConfig) WithSeed(seed uint64) Conv2DConfig {
	cfg.Seed = &seed
	return cfg
}

// ConfigError reports the first argument outside the supported configuration.
type ConfigError struct {
	Field string
	Value interface{}
	Want  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s=%v, want %s", ErrUnsupportedConfig, e.Field, e.Value, e.Want)
}

func (e *ConfigError) Unwrap() error { return ErrUnsupportedConfig }

// Validate checks cfg against the single supported configuration.
func (cfg Conv2DConfig) Validate() error {
	switch {
	case cfg.InChannels != 1:
		return &ConfigError{"in_channels", cfg.InChannels, "1"}
	case cfg.OutChannels <= 0:
		return &ConfigError{"out_channels", cfg.OutChannels, "a positive integer"}
	case cfg.KernelSize <= 0:
		return &ConfigError{"kernel_size", cfg.KernelSize, "a positive integer"}
	case cfg.Stride != 1:
		return &ConfigError{"stride", cfg.Stride, "1"}
	case cfg.Padding != 0:
		return &ConfigError{"padding", cfg.Padding, "0"}
	case cfg.Dilation != 1:
		return &ConfigError{"dilation", cfg.Dilation, "1"}
	case cfg.Groups != 1:
		return &ConfigError{"groups", cfg.Groups, "1"}
	case cfg.PaddingMode != PaddingZeros:
		return &ConfigError{"padding_mode", cfg.PaddingMode, `"` + PaddingZeros + `"`}
	}
	return nil
}

// Conv2D is a 2D convolution evaluated through arith primitives, so that it
// runs unchanged on plaintext, instrumented or encrypted tensors.
type Conv2D struct {
	cfg Conv2DConfig

	W *tensor.Tensor // weights: [outChan, 1, k, k]
	B *tensor.Tensor // bias: [outChan], nil without bias

	heBackend *hetensor.Backend

	// Cached input for backward pass
	lastInput *tensor.Tensor

	// Gradient storage
	gradW *tensor.Tensor
	gradB *tensor.Tensor
}

// NewConv2D validates cfg and initializes the parameters the same way the
// standard convolution module does.
func NewConv2D(cfg Conv2DConfig) (*Conv2D, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := cfg.KernelSize
	c := &Conv2D{
		cfg: cfg,
		W:   tensor.New(cfg.OutChannels, cfg.InChannels, k, k),
	}
	if cfg.Bias {
		c.B = tensor.New(cfg.OutChannels)
	}
	c.resetParameters()
	return c, nil
}

// WithHE enables encrypted evaluation. heCtx may be nil on an evaluator that
// holds no secret key.
func (c *Conv2D) WithHE(kit *ckkswrapper.ServerKit, heCtx *ckkswrapper.HeContext) *Conv2D {
	c.heBackend = hetensor.NewBackend(kit, heCtx)
	return c
}

// Config returns the construction arguments.
func (c *Conv2D) Config() Conv2DConfig { return c.cfg }

// HasBias reports whether the layer adds a per-channel bias.
func (c *Conv2D) HasBias() bool { return c.B != nil }

// HEBackend returns the encrypted backend, or nil when HE is not enabled.
func (c *Conv2D) HEBackend() *hetensor.Backend { return c.heBackend }

// GetOutputShape returns the output dimensions for given input dimensions.
func (c *Conv2D) GetOutputShape(inH, inW int) (outH, outW int) {
	return inH - c.cfg.KernelSize + 1, inW - c.cfg.KernelSize + 1
}

func (c *Conv2D) checkInput(shape []int) error {
	if len(shape) != 4 {
		return fmt.Errorf("%w: want [batch, %d, rows, cols], got %v", ErrInputShape, c.cfg.InChannels, shape)
	}
	if shape[0] <= 0 || shape[1] != c.cfg.InChannels {
		return fmt.Errorf("%w: want [batch, %d, rows, cols], got %v", ErrInputShape, c.cfg.InChannels, shape)
	}
	if k := c.cfg.KernelSize; shape[2] < k || shape[3] < k {
		return fmt.Errorf("%w: spatial size %dx%d smaller than kernel %d", ErrInputShape, shape[2], shape[3], k)
	}
	return nil
}

// Apply evaluates the convolution of data on be.
//
// Every window position (i, j) is visited in row-major order, multiplied with
// the kernels and reduced over the two kernel axes. The per-window results are
// concatenated and viewed as [batch, outChan, outRows, outCols]; the view is
// only correct because of that visiting order.
func Apply[T any](c *Conv2D, be arith.Backend[T], data T) (T, error) {
	var zero T
	shape := be.Shape(data)
	if err := c.checkInput(shape); err != nil {
		return zero, err
	}
	batch, rows, cols := shape[0], shape[2], shape[3]
	k, outChan := c.cfg.KernelSize, c.cfg.OutChannels
	outRows, outCols := c.GetOutputShape(rows, cols)

	expandedData, err := be.Unsqueeze(data, 1)
	if err != nil {
		return zero, fmt.Errorf("conv2d: unsqueeze input: %w", err)
	}
	expandedData, err = be.Expand(expandedData, batch, outChan, 1, rows, cols)
	if err != nil {
		return zero, fmt.Errorf("conv2d: expand input: %w", err)
	}
	expandedModel, err := c.expandedWeights(batch)
	if err != nil {
		return zero, err
	}

	kernelResults := make([]T, 0, outRows*outCols)
	for i := 0; i < outRows; i++ {
		for j := 0; j < outCols; j++ {
			win, err := be.Narrow(expandedData, 3, i, k)
			if err != nil {
				return zero, fmt.Errorf("conv2d: window (%d,%d): %w", i, j, err)
			}
			if win, err = be.Narrow(win, 4, j, k); err != nil {
				return zero, fmt.Errorf("conv2d: window (%d,%d): %w", i, j, err)
			}
			prod, err := be.Mul(win, expandedModel)
			if err != nil {
				return zero, fmt.Errorf("conv2d: window (%d,%d): %w", i, j, err)
			}
			// [B, O, 1, k, k] -> [B, O, 1, k] -> [B, O, 1]
			if prod, err = be.Sum(prod, 3); err != nil {
				return zero, fmt.Errorf("conv2d: window (%d,%d): %w", i, j, err)
			}
			if prod, err = be.Sum(prod, 3); err != nil {
				return zero, fmt.Errorf("conv2d: window (%d,%d): %w", i, j, err)
			}
			kernelResults = append(kernelResults, prod)
		}
	}

	pred, err := be.Concat(2, kernelResults...)
	if err != nil {
		return zero, fmt.Errorf("conv2d: concat windows: %w", err)
	}
	if pred, err = be.View(pred, batch, outChan, outRows, outCols); err != nil {
		return zero, fmt.Errorf("conv2d: view output: %w", err)
	}

	if c.B != nil {
		bias, err := c.expandedBias(batch, outRows, outCols)
		if err != nil {
			return zero, err
		}
		if pred, err = be.Add(pred, bias); err != nil {
			return zero, fmt.Errorf("conv2d: add bias: %w", err)
		}
	}
	return pred, nil
}

// expandedWeights broadcasts W to [batch, outChan, 1, k, k].
func (c *Conv2D) expandedWeights(batch int) (*tensor.Tensor, error) {
	k := c.cfg.KernelSize
	w, err := tensor.Unsqueeze(c.W, 0)
	if err == nil {
		w, err = tensor.Expand(w, batch, c.cfg.OutChannels, 1, k, k)
	}
	if err != nil {
		return nil, fmt.Errorf("conv2d: expand weights: %w", err)
	}
	return w, nil
}

// expandedBias broadcasts B to [batch, outChan, outRows, outCols].
func (c *Conv2D) expandedBias(batch, outRows, outCols int) (*tensor.Tensor, error) {
	b := c.B
	var err error
	for _, axis := range []int{0, 2, 3} {
		if b, err = tensor.Unsqueeze(b, axis); err != nil {
			return nil, fmt.Errorf("conv2d: expand bias: %w", err)
		}
	}
	if b, err = tensor.Expand(b, batch, c.cfg.OutChannels, outRows, outCols); err != nil {
		return nil, fmt.Errorf("conv2d: expand bias: %w", err)
	}
	return b, nil
}

// ForwardPlain performs plaintext forward pass. It keeps a copy of input for
// BackwardPlain, so the caller may reuse the tensor afterwards.
func (c *Conv2D) ForwardPlain(input *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := Apply[*tensor.Tensor](c, arith.Plain{}, input)
	if err != nil {
		return nil, err
	}
	c.lastInput = input.Clone()
	return out, nil
}

// ForwardHE performs the same computation on an encrypted input.
func (c *Conv2D) ForwardHE(input *hetensor.Tensor) (*hetensor.Tensor, error) {
	if c.heBackend == nil {
		return nil, fmt.Errorf("ForwardHE called on a layer without HE backend")
	}
	return Apply[*hetensor.Tensor](c, c.heBackend, input)
}

// BackwardPlain computes parameter gradients for the last plaintext forward
// and returns the gradient with respect to its input. It reads the input as it
// was at forward time.
func (c *Conv2D) BackwardPlain(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if c.lastInput == nil {
		return nil, fmt.Errorf("no cached input for backward pass")
	}
	in := c.lastInput
	batch, height, width := in.Shape[0], in.Shape[2], in.Shape[3]
	outH, outW := c.GetOutputShape(height, width)
	if !tensor.SameShape(gradOut.Shape, []int{batch, c.cfg.OutChannels, outH, outW}) {
		return nil, fmt.Errorf("gradOut shape %v does not match output [%d %d %d %d]",
			gradOut.Shape, batch, c.cfg.OutChannels, outH, outW)
	}
	k := c.cfg.KernelSize

	c.gradW = tensor.New(c.W.Shape...)
	if c.B != nil {
		c.gradB = tensor.New(c.B.Shape...)
	}
	inputGrad := tensor.New(in.Shape...)

	for b := 0; b < batch; b++ {
		for oc := 0; oc < c.cfg.OutChannels; oc++ {
			for y := 0; y < outH; y++ {
				for x := 0; x < outW; x++ {
					g := gradOut.At(b, oc, y, x)
					if c.gradB != nil {
						c.gradB.Data[oc] += g
					}
					for dy := 0; dy < k; dy++ {
						for dx := 0; dx < k; dx++ {
							wIdx := (oc*k+dy)*k + dx
							inIdx := (b*height+y+dy)*width + x + dx
							c.gradW.Data[wIdx] += in.Data[inIdx] * g
							inputGrad.Data[inIdx] += c.W.Data[wIdx] * g
						}
					}
				}
			}
		}
	}
	return inputGrad, nil
}

// Update updates parameters using plaintext gradients.
func (c *Conv2D) Update(lr float64) error {
	if c.gradW == nil {
		return fmt.Errorf("no gradients: call Backward first")
	}
	for i := range c.W.Data {
		c.W.Data[i] -= lr * c.gradW.Data[i]
	}
	if c.B != nil {
		for i := range c.B.Data {
			c.B.Data[i] -= lr * c.gradB.Data[i]
		}
	}
	return nil
}

// Forward dispatches on the input type: *tensor.Tensor or *hetensor.Tensor.
func (c *Conv2D) Forward(input interface{}) (interface{}, error) {
	switch x := input.(type) {
	case *tensor.Tensor:
		return c.ForwardPlain(x)
	case *hetensor.Tensor:
		return c.ForwardHE(x)
	default:
		return nil, fmt.Errorf("conv2d: unsupported input type %T", input)
	}
}

// Backward only supports plaintext gradients.
func (c *Conv2D) Backward(gradOut interface{}) (interface{}, error) {
	g, ok := gradOut.(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("conv2d: backward expects *tensor.Tensor, got %T", gradOut)
	}
	return c.BackwardPlain(g)
}

func (c *Conv2D) Encrypted() bool {
	return c.heBackend != nil
}

// Levels is the multiplicative depth consumed by an encrypted forward.
func (c *Conv2D) Levels() int {
	if c.Encrypted() {
		return 1
	}
	return 0
}

func (c *Conv2D) Tag() string {
	return fmt.Sprintf("Conv2D_%d_%d_%d_%d", c.cfg.InChannels, c.cfg.OutChannels, c.cfg.KernelSize, c.cfg.KernelSize)
}
