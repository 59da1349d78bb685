package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Tensor is a typed view over a RawTensor bound to a backend.
//
// Type Parameters:
//   - T: element type (must satisfy DType)
//   - B: compute backend
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	y := x.Add(x).MulScalar(0.5)
type Tensor[T DType, B Backend] struct {
	raw     *RawTensor
	backend B
}

// New wraps a RawTensor.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return &Tensor[T, B]{raw: raw, backend: b}
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	raw, err := NewRaw(shape, inferDataType[T](), b.Device())
	if err != nil {
		return nil, err
	}
	t := New[T](raw, b)
	copy(t.Data(), data)
	return t, nil
}

// Zeros creates a zero-filled tensor. Panics on an invalid shape.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return New[T](MustNewRaw(shape, inferDataType[T](), b.Device()), b)
}

// Full creates a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Ones creates a float32 tensor of ones.
func Ones[T ~float32 | ~float64, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T](shape, T(1), b)
}

// Randn fills a float32 tensor with samples from N(0, std²).
func Randn[B Backend](shape Shape, std float64, rng *rand.Rand, b B) *Tensor[float32, B] {
	t := Zeros[float32](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = float32(rng.NormFloat64() * std)
	}
	return t
}

// TruncNormal fills a float32 tensor with N(0, std²) samples, redrawing any
// sample that falls outside [lo, hi].
func TruncNormal[B Backend](shape Shape, std, lo, hi float64, rng *rand.Rand, b B) *Tensor[float32, B] {
	if lo >= hi {
		panic(fmt.Sprintf("trunc normal: empty interval [%v, %v]", lo, hi))
	}
	t := Zeros[float32](shape, b)
	data := t.Data()
	for i := range data {
		v := rng.NormFloat64() * std
		for v < lo || v > hi {
			v = rng.NormFloat64() * std
		}
		data[i] = float32(v)
	}
	return t
}

// Shape returns the tensor's shape.
func (t *Tensor[T, B]) Shape() Shape { return t.raw.Shape() }

// DType returns the element type tag.
func (t *Tensor[T, B]) DType() DataType { return t.raw.DType() }

// NumElements returns the total number of elements.
func (t *Tensor[T, B]) NumElements() int { return t.raw.NumElements() }

// Raw returns the underlying RawTensor.
func (t *Tensor[T, B]) Raw() *RawTensor { return t.raw }

// Backend returns the compute backend.
func (t *Tensor[T, B]) Backend() B { return t.backend }

// Data returns a typed zero-copy view of the buffer.
func (t *Tensor[T, B]) Data() []T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(t.raw.AsFloat32()).([]T)
	case float64:
		return any(t.raw.AsFloat64()).([]T)
	case int32:
		return any(t.raw.AsInt32()).([]T)
	case int64:
		return any(t.raw.AsInt64()).([]T)
	case bool:
		return any(t.raw.AsBool()).([]T)
	default:
		panic("unsupported type")
	}
}

// Item returns the single element of a one-element tensor.
func (t *Tensor[T, B]) Item() T {
	if t.NumElements() != 1 {
		panic(fmt.Sprintf("item: tensor has %d elements", t.NumElements()))
	}
	return t.Data()[0]
}

// Clone returns a deep copy bound to the same backend.
func (t *Tensor[T, B]) Clone() *Tensor[T, B] {
	return New[T](t.raw.Clone(), t.backend)
}

// Detach returns a tensor over a copy of the data that autodiff no longer
// links to the graph that produced t.
func (t *Tensor[T, B]) Detach() *Tensor[T, B] {
	return t.Clone()
}

// HasNaNOrInf reports whether any float element is NaN or infinite.
func (t *Tensor[T, B]) HasNaNOrInf() bool {
	switch t.DType() {
	case Float32:
		for _, v := range t.raw.AsFloat32() {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return true
			}
		}
	case Float64:
		for _, v := range t.raw.AsFloat64() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

func (t *Tensor[T, B]) wrap(raw *RawTensor) *Tensor[T, B] {
	return New[T](raw, t.backend)
}

// Add returns t + other (broadcasting).
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return t.wrap(t.backend.Add(t.raw, other.raw))
}

// Sub returns t - other (broadcasting).
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return t.wrap(t.backend.Sub(t.raw, other.raw))
}

// Mul returns t * other (broadcasting).
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return t.wrap(t.backend.Mul(t.raw, other.raw))
}

// Div returns t / other (broadcasting).
func (t *Tensor[T, B]) Div(other *Tensor[T, B]) *Tensor[T, B] {
	return t.wrap(t.backend.Div(t.raw, other.raw))
}

// MulScalar multiplies every element by s.
func (t *Tensor[T, B]) MulScalar(s float32) *Tensor[T, B] {
	return t.wrap(t.backend.MulScalar(t.raw, s))
}

// AddScalar adds s to every element.
func (t *Tensor[T, B]) AddScalar(s float32) *Tensor[T, B] {
	return t.wrap(t.backend.AddScalar(t.raw, s))
}

// Exp is the element-wise exponential.
func (t *Tensor[T, B]) Exp() *Tensor[T, B] { return t.wrap(t.backend.Exp(t.raw)) }

// Log is the element-wise natural logarithm.
func (t *Tensor[T, B]) Log() *Tensor[T, B] { return t.wrap(t.backend.Log(t.raw)) }

// Sqrt is the element-wise square root.
func (t *Tensor[T, B]) Sqrt() *Tensor[T, B] { return t.wrap(t.backend.Sqrt(t.raw)) }

// Rsqrt is the element-wise reciprocal square root.
func (t *Tensor[T, B]) Rsqrt() *Tensor[T, B] { return t.wrap(t.backend.Rsqrt(t.raw)) }

// Tanh is the element-wise hyperbolic tangent.
func (t *Tensor[T, B]) Tanh() *Tensor[T, B] { return t.wrap(t.backend.Tanh(t.raw)) }

// GELU is the element-wise Gaussian error linear unit (erf form).
func (t *Tensor[T, B]) GELU() *Tensor[T, B] { return t.wrap(t.backend.GELU(t.raw)) }

// MatMul is the 2D matrix product.
func (t *Tensor[T, B]) MatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return t.wrap(t.backend.MatMul(t.raw, other.raw))
}

// BatchMatMul multiplies the trailing matrices of 3D/4D tensors.
func (t *Tensor[T, B]) BatchMatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return t.wrap(t.backend.BatchMatMul(t.raw, other.raw))
}

// Conv2D applies a 2D convolution with a [F, C, KH, KW] kernel.
func (t *Tensor[T, B]) Conv2D(kernel *Tensor[T, B], stride, padding int) *Tensor[T, B] {
	return t.wrap(t.backend.Conv2D(t.raw, kernel.raw, stride, padding))
}

// Reshape returns a tensor with the same data and a new shape.
// One dimension may be -1 and is inferred.
func (t *Tensor[T, B]) Reshape(dims ...int) *Tensor[T, B] {
	return t.wrap(t.backend.Reshape(t.raw, inferShape(t.Shape(), dims)))
}

// Transpose permutes axes. With no axes it reverses them.
func (t *Tensor[T, B]) Transpose(axes ...int) *Tensor[T, B] {
	return t.wrap(t.backend.Transpose(t.raw, axes...))
}

// Narrow returns length entries of dim starting at start.
func (t *Tensor[T, B]) Narrow(dim, start, length int) *Tensor[T, B] {
	return t.wrap(t.backend.Narrow(t.raw, dim, start, length))
}

// Expand broadcasts size-1 dimensions to shape.
func (t *Tensor[T, B]) Expand(shape Shape) *Tensor[T, B] {
	return t.wrap(t.backend.Expand(t.raw, shape))
}

// Softmax normalizes along dim.
func (t *Tensor[T, B]) Softmax(dim int) *Tensor[T, B] {
	return t.wrap(t.backend.Softmax(t.raw, dim))
}

// Sum reduces all elements to a scalar.
func (t *Tensor[T, B]) Sum() *Tensor[T, B] { return t.wrap(t.backend.Sum(t.raw)) }

// SumDim sums along dim.
func (t *Tensor[T, B]) SumDim(dim int, keepDim bool) *Tensor[T, B] {
	return t.wrap(t.backend.SumDim(t.raw, dim, keepDim))
}

// MeanDim averages along dim.
func (t *Tensor[T, B]) MeanDim(dim int, keepDim bool) *Tensor[T, B] {
	return t.wrap(t.backend.MeanDim(t.raw, dim, keepDim))
}

// Argmax returns int32 indices of the maximum along dim (dim removed).
func (t *Tensor[T, B]) Argmax(dim int) *Tensor[int32, B] {
	return New[int32](t.backend.Argmax(t.raw, dim), t.backend)
}

// NotEqual compares element-wise.
func (t *Tensor[T, B]) NotEqual(other *Tensor[T, B]) *Tensor[bool, B] {
	return New[bool](t.backend.NotEqual(t.raw, other.raw), t.backend)
}

// And is the element-wise logical AND of two bool tensors.
func (t *Tensor[T, B]) And(other *Tensor[bool, B]) *Tensor[bool, B] {
	return New[bool](t.backend.And(t.raw, other.raw), t.backend)
}

// Where selects x where cond is true and y elsewhere.
func Where[T DType, B Backend](cond *Tensor[bool, B], x, y *Tensor[T, B]) *Tensor[T, B] {
	return New[T](x.backend.Where(cond.raw, x.raw, y.raw), x.backend)
}

// Cat concatenates tensors along dim.
func Cat[T DType, B Backend](tensors []*Tensor[T, B], dim int) *Tensor[T, B] {
	if len(tensors) == 0 {
		panic("cat: no tensors")
	}
	raws := make([]*RawTensor, len(tensors))
	for i, t := range tensors {
		raws[i] = t.raw
	}
	return tensors[0].wrap(tensors[0].backend.Cat(raws, dim))
}

func inferShape(old Shape, dims []int) Shape {
	out := make(Shape, len(dims))
	infer := -1
	known := 1
	for i, d := range dims {
		switch {
		case d == -1:
			if infer >= 0 {
				panic(fmt.Sprintf("reshape: more than one -1 in %v", dims))
			}
			infer = i
		case d <= 0:
			panic(fmt.Sprintf("reshape: invalid dimension %d in %v", d, dims))
		default:
			known *= d
		}
		out[i] = d
	}
	if infer >= 0 {
		if known == 0 || old.NumElements()%known != 0 {
			panic(fmt.Sprintf("reshape: cannot infer dimension of %v from %v", dims, old))
		}
		out[infer] = old.NumElements() / known
	}
	return out
}
