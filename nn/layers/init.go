package layers

import (
	"fmt"
	"math"
	"time"

	"hconv/tensor"
	"hconv/utils"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// resetParameters draws W and B from U(-1/sqrt(fanIn), 1/sqrt(fanIn)), which is
// what kaiming-uniform with a=sqrt(5) reduces to for the weights and the bound
// the standard module uses for the bias. Weights are drawn before the bias.
func (c *Conv2D) resetParameters() {
	var src rand.Source
	if c.cfg.Seed != nil {
		src = rand.NewSource(*c.cfg.Seed)
	} else {
		src = rand.NewSource(uint64(time.Now().UnixNano()))
	}

	fanIn := c.cfg.InChannels * c.cfg.KernelSize * c.cfg.KernelSize
	bound := 1 / math.Sqrt(float64(fanIn))
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}

	fill := func(t *tensor.Tensor) {
		for i := range t.Data {
			t.Data[i] = dist.Rand()
		}
	}
	fill(c.W)
	if c.B != nil {
		fill(c.B)
	}
}

// InitBound returns the half-width of the initialization interval.
func (c *Conv2D) InitBound() float64 {
	return 1 / math.Sqrt(float64(c.cfg.InChannels*c.cfg.KernelSize*c.cfg.KernelSize))
}

// ExportWeights copies the parameters into the serializable weights format.
func (c *Conv2D) ExportWeights(name string) utils.LayerWeight {
	lw := utils.LayerWeight{Weight: utils.TensorToWeightData(name+".weight", c.W)}
	if c.B != nil {
		lw.Bias = utils.TensorToWeightData(name+".bias", c.B)
	}
	return lw
}

// LoadWeights replaces the parameters. Shapes and bias presence must match the layer.
func (c *Conv2D) LoadWeights(lw utils.LayerWeight) error {
	if lw.Weight == nil {
		return fmt.Errorf("conv2d: missing weight")
	}
	if !tensor.SameShape(lw.Weight.Shape, c.W.Shape) || len(lw.Weight.Data) != len(c.W.Data) {
		return fmt.Errorf("conv2d: weight shape %v, want %v", lw.Weight.Shape, c.W.Shape)
	}
	switch {
	case c.B == nil && lw.Bias != nil:
		return fmt.Errorf("conv2d: bias given for a layer without bias")
	case c.B != nil && lw.Bias == nil:
		return fmt.Errorf("conv2d: missing bias")
	case c.B != nil && (!tensor.SameShape(lw.Bias.Shape, c.B.Shape) || len(lw.Bias.Data) != len(c.B.Data)):
		return fmt.Errorf("conv2d: bias shape %v, want %v", lw.Bias.Shape, c.B.Shape)
	}
	copy(c.W.Data, lw.Weight.Data)
	if c.B != nil {
		copy(c.B.Data, lw.Bias.Data)
	}
	return nil
}
