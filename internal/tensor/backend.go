package tensor

// Backend defines the compute operations the detection models rely on.
// Operations panic on shape violations; modules validate their inputs first.
//
// Implementations:
//   - CPU: Pure Go, row-parallel (internal/backend/cpu)
type Backend interface {
	// MatMul performs (M, K) @ (K, N) -> (M, N).
	MatMul(a, b *RawTensor) *RawTensor

	// AddRow adds a [N] vector to every row of an (M, N) matrix.
	AddRow(x, row *RawTensor) *RawTensor

	// Transpose swaps the two axes of a 2D tensor.
	Transpose(x *RawTensor) *RawTensor

	// Activation functions (element-wise)
	ReLU(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
