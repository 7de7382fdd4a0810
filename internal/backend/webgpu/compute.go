//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/CosmosHua/Open3D-ML/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

const (
	// linearGroup is the 1D workgroup size of the element-wise shaders.
	linearGroup = 256
	// tileGroup is the edge of the 2D workgroups of matmul and transpose.
	tileGroup = 16
)

// kernel describes one compute dispatch: read-only inputs bound first, the
// output next, then a uniform of u32 parameters.
type kernel struct {
	name   string
	code   string
	inputs []*tensor.RawTensor
	out    tensor.Shape
	params []uint32
	groups [3]uint32
}

func (b *Backend) pipeline(name, code string) *wgpu.ComputePipeline {
	b.mu.RLock()
	p, ok := b.pipelines[name]
	b.mu.RUnlock()
	if ok {
		return p
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pipelines[name]; ok {
		return p
	}
	shader := b.device.CreateShaderModuleWGSL(code)
	p = b.device.CreateComputePipelineSimple(nil, shader, "main")
	b.shaders[name] = shader
	b.pipelines[name] = p
	return p
}

// upload creates a buffer holding data. Uniform buffers are padded to 16 bytes.
func (b *Backend) upload(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	if usage&wgpu.BufferUsageUniform != 0 {
		size = (size + 15) &^ 15
	}
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // G103: the mapped range is exactly size bytes
	copy(unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size), data)
	buf.Unmap()
	return buf
}

// download copies size bytes of src back through a staging buffer.
func (b *Backend) download(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}
	defer staging.Unmap()

	out := make([]byte, size)
	//nolint:gosec // G103: the mapped range is exactly size bytes
	copy(out, unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size))
	return out, nil
}

func (b *Backend) run(k kernel) (*tensor.RawTensor, error) {
	result, err := tensor.NewRaw(k.out, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	if result.ByteSize() == 0 {
		return result, nil
	}

	p := b.pipeline(k.name, k.code)
	entries := make([]wgpu.BindGroupEntry, 0, len(k.inputs)+2)
	for i, in := range k.inputs {
		buf := b.upload(in.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
		defer buf.Release()
		//nolint:gosec // G115: ByteSize is non-negative
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, uint64(in.ByteSize())))
	}

	//nolint:gosec // G115: ByteSize is non-negative
	size := uint64(result.ByteSize())
	out := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer out.Release()
	//nolint:gosec // G115: at most a handful of bindings
	slot := uint32(len(k.inputs))
	entries = append(entries, wgpu.BufferBindingEntry(slot, out, 0, size))

	raw := make([]byte, 4*len(k.params))
	for i, v := range k.params {
		binary.LittleEndian.PutUint32(raw[4*i:], v)
	}
	params := b.upload(raw, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	defer params.Release()
	entries = append(entries, wgpu.BufferBindingEntry(slot+1, params, 0, 16))

	group := b.device.CreateBindGroupSimple(p.GetBindGroupLayout(0), entries)
	defer group.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p)
	pass.SetBindGroup(0, group, nil)
	pass.DispatchWorkgroups(k.groups[0], k.groups[1], k.groups[2])
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	data, err := b.download(out, size)
	if err != nil {
		return nil, err
	}
	copy(result.Data(), data)
	return result, nil
}

func groups(n, per int) uint32 {
	//nolint:gosec // G115: dimensions are non-negative
	return uint32((n + per - 1) / per)
}

func requireFloat32(op string, ts ...*tensor.RawTensor) error {
	for _, t := range ts {
		if t.DType() != tensor.Float32 {
			return fmt.Errorf("webgpu: %s: only float32 is supported, got %s", op, t.DType())
		}
	}
	return nil
}

func (b *Backend) runUnaryOp(x *tensor.RawTensor, name, code string) (*tensor.RawTensor, error) {
	if err := requireFloat32(name, x); err != nil {
		return nil, err
	}
	n := x.NumElements()
	return b.run(kernel{
		name:   name,
		code:   code,
		inputs: []*tensor.RawTensor{x},
		out:    x.Shape(),
		//nolint:gosec // G115: element count is non-negative
		params: []uint32{uint32(n)},
		groups: [3]uint32{groups(n, linearGroup), 1, 1},
	})
}

func (b *Backend) runAddRow(x, row *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := requireFloat32("add_row", x, row); err != nil {
		return nil, err
	}
	if x.Shape().Rank() != 2 || row.Shape().Rank() != 1 || x.Shape()[1] != row.Shape()[0] {
		return nil, fmt.Errorf("webgpu: add_row: cannot add %v to rows of %v", row.Shape(), x.Shape())
	}
	n := x.NumElements()
	return b.run(kernel{
		name:   "add_row",
		code:   addRowShader,
		inputs: []*tensor.RawTensor{x, row},
		out:    x.Shape(),
		//nolint:gosec // G115: dimensions are non-negative
		params: []uint32{uint32(n), uint32(x.Shape()[1])},
		groups: [3]uint32{groups(n, linearGroup), 1, 1},
	})
}

func (b *Backend) runMatMul(x, w *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := requireFloat32("matmul", x, w); err != nil {
		return nil, err
	}
	if x.Shape().Rank() != 2 || w.Shape().Rank() != 2 || x.Shape()[1] != w.Shape()[0] {
		return nil, fmt.Errorf("webgpu: matmul shape mismatch: %v @ %v", x.Shape(), w.Shape())
	}
	m, k, n := x.Shape()[0], x.Shape()[1], w.Shape()[1]
	return b.run(kernel{
		name:   "matmul",
		code:   matmulShader,
		inputs: []*tensor.RawTensor{x, w},
		out:    tensor.Shape{m, n},
		//nolint:gosec // G115: dimensions are non-negative
		params: []uint32{uint32(m), uint32(k), uint32(n)},
		groups: [3]uint32{groups(n, tileGroup), groups(m, tileGroup), 1},
	})
}

func (b *Backend) runTranspose(x *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := requireFloat32("transpose", x); err != nil {
		return nil, err
	}
	if x.Shape().Rank() != 2 {
		return nil, fmt.Errorf("webgpu: transpose requires a 2D tensor, got %v", x.Shape())
	}
	rows, cols := x.Shape()[0], x.Shape()[1]
	return b.run(kernel{
		name:   "transpose",
		code:   transposeShader,
		inputs: []*tensor.RawTensor{x},
		out:    tensor.Shape{cols, rows},
		//nolint:gosec // G115: dimensions are non-negative
		params: []uint32{uint32(rows), uint32(cols)},
		groups: [3]uint32{groups(cols, tileGroup), groups(rows, tileGroup), 1},
	})
}
