package nn

import (
	"fmt"

	"hconv/tensor"
)

// MSELoss is the mean squared error over all elements.
type MSELoss struct{}

// Forward returns mean((pred - target)^2).
func (MSELoss) Forward(pred, target *tensor.Tensor) (float64, error) {
	if !tensor.SameShape(pred.Shape, target.Shape) {
		return 0, fmt.Errorf("mse: shape %v != %v", pred.Shape, target.Shape)
	}
	sum := 0.0
	for i, p := range pred.Data {
		d := p - target.Data[i]
		sum += d * d
	}
	return sum / float64(len(pred.Data)), nil
}

// Backward computes the gradient of the loss with respect to pred.
// grad = 2 * (pred - target) / n
func (MSELoss) Backward(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	if !tensor.SameShape(pred.Shape, target.Shape) {
		return nil, fmt.Errorf("mse: shape %v != %v", pred.Shape, target.Shape)
	}
	grad := tensor.New(pred.Shape...)
	n := float64(len(pred.Data))
	for i := range grad.Data {
		grad.Data[i] = 2 * (pred.Data[i] - target.Data[i]) / n
	}
	return grad, nil
}
