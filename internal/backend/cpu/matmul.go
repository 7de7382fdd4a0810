package cpu

import (
	"fmt"

	"github.com/CosmosHua/Open3D-ML/internal/parallel"
	"github.com/CosmosHua/Open3D-ML/internal/tensor"
)

// MatMul performs matrix multiplication (M, K) @ (K, N) -> (M, N).
// Rows of the output are computed in parallel.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}
	requireFloat32("matmul", a, b)

	result, err := tensor.NewRaw(tensor.Shape{m, n}, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("matmul: failed to create result tensor: %v", err))
	}

	out, lhs, rhs := result.AsFloat32(), a.AsFloat32(), b.AsFloat32()
	parallel.For(m, func(i int) {
		row := out[i*n : (i+1)*n]
		for p := 0; p < k; p++ {
			av := lhs[i*k+p]
			if av == 0 {
				continue
			}
			brow := rhs[p*n : (p+1)*n]
			for j, bv := range brow {
				row[j] += av * bv
			}
		}
	}, cpu.parallel)

	return result
}

// Transpose swaps the axes of a 2D tensor.
func (cpu *CPUBackend) Transpose(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("transpose: expected 2D tensor, got shape %v", shape))
	}
	requireFloat32("transpose", x)

	rows, cols := shape[0], shape[1]
	result, err := tensor.NewRaw(tensor.Shape{cols, rows}, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("transpose: %v", err))
	}

	src, dst := x.AsFloat32(), result.AsFloat32()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return result
}

// AddRow adds row (shape [N]) to every row of x (shape [M, N]).
func (cpu *CPUBackend) AddRow(x, row *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("add_row: expected 2D tensor, got shape %v", shape))
	}
	if !row.Shape().Equal(tensor.Shape{shape[1]}) {
		panic(fmt.Sprintf("add_row: row shape %v does not match columns of %v", row.Shape(), shape))
	}
	requireFloat32("add_row", x, row)

	result := x.Clone().To(cpu.device)
	data, bias := result.AsFloat32(), row.AsFloat32()
	n := shape[1]
	parallel.For(shape[0], func(i int) {
		r := data[i*n : (i+1)*n]
		for j := range r {
			r[j] += bias[j]
		}
	}, cpu.parallel)
	return result
}

func requireFloat32(op string, ts ...*tensor.RawTensor) {
	for _, t := range ts {
		if t.DType() != tensor.Float32 {
			panic(fmt.Sprintf("%s: unsupported dtype %s (only float32 supported)", op, t.DType()))
		}
	}
}
