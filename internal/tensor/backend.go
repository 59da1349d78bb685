package tensor

// Backend defines the operations a compute device must provide.
//
// Element-wise binary operations broadcast NumPy-style. Contract violations
// (mismatched shapes, unsupported dtypes) panic with a descriptive message;
// they are programming errors, not runtime conditions.
//
// Implementations:
//   - cpu: pure Go, parallel across batch and heads
//   - webgpu: WGSL compute shaders for matrix products, CPU for the rest
//   - autodiff: decorator recording every differentiable call on a tape
type Backend interface {
	// Element-wise binary operations (float32, broadcasting).
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations.
	MulScalar(x *RawTensor, s float32) *RawTensor
	AddScalar(x *RawTensor, s float32) *RawTensor

	// Element-wise math.
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	Sqrt(x *RawTensor) *RawTensor
	Rsqrt(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor
	GELU(x *RawTensor) *RawTensor

	// MatMul multiplies 2D matrices: [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// BatchMatMul multiplies the last two axes of 3D or 4D tensors whose
	// leading axes match: [..., M, K] @ [..., K, N] -> [..., M, N].
	BatchMatMul(a, b *RawTensor) *RawTensor

	// Conv2D convolves [N, C, H, W] with [F, C, KH, KW] -> [N, F, OH, OW].
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	Conv2DKernelBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor

	// Shape manipulation (any dtype).
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Narrow(t *RawTensor, dim, start, length int) *RawTensor
	Expand(t *RawTensor, shape Shape) *RawTensor

	// Softmax along dim.
	Softmax(x *RawTensor, dim int) *RawTensor

	// Reductions.
	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	Argmax(x *RawTensor, dim int) *RawTensor

	// Comparison and boolean logic, returning Bool tensors.
	NotEqual(a, b *RawTensor) *RawTensor
	And(a, b *RawTensor) *RawTensor

	// Where selects x where condition is true, else y (all three broadcast).
	Where(condition, x, y *RawTensor) *RawTensor

	// CrossEntropy returns the mean negative log-likelihood of int32 class
	// targets [N] under logits [N, C] as a scalar.
	CrossEntropy(logits, targets *RawTensor) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}
