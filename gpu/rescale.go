package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// RescaleSpec defines configuration for the elementwise rescale kernel
type RescaleSpec struct {
	Size int     // Number of elements
	Eps  float32 // Guard below which the ordinary gradient passes through
}

// RescaleOp holds GPU resources for one rescale dispatch. The kernel
// replaces each gradient entry by gradOut * deltaOut / deltaIn wherever
// |deltaIn| clears Eps and keeps the ordinary gradIn entry elsewhere.
type RescaleOp struct {
	Spec RescaleSpec

	pipeline  *wgpu.ComputePipeline
	bindGroup *wgpu.BindGroup

	DeltaInBuffer  *wgpu.Buffer
	DeltaOutBuffer *wgpu.Buffer
	GradInBuffer   *wgpu.Buffer
	GradOutBuffer  *wgpu.Buffer
	ResultBuffer   *wgpu.Buffer
}

func (op *RescaleOp) AllocateBuffers(ctx *Context, labelPrefix string) error {
	var err error
	size := op.Spec.Size

	inputs := []struct {
		buf   **wgpu.Buffer
		label string
	}{
		{&op.DeltaInBuffer, "_DeltaIn"},
		{&op.DeltaOutBuffer, "_DeltaOut"},
		{&op.GradInBuffer, "_GradIn"},
		{&op.GradOutBuffer, "_GradOut"},
	}
	for _, in := range inputs {
		*in.buf, err = ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: labelPrefix + in.label,
			Size:  uint64(size * 4),
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return err
		}
	}

	op.ResultBuffer, err = ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: labelPrefix + "_Result",
		Size:  uint64(size * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	return err
}

func (op *RescaleOp) GenerateShader() string {
	// Elementwise: result = |din| < eps ? grad_in : grad_out * dout / din
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> delta_in : array<f32>;
		@group(0) @binding(1) var<storage, read> delta_out : array<f32>;
		@group(0) @binding(2) var<storage, read> grad_in : array<f32>;
		@group(0) @binding(3) var<storage, read> grad_out : array<f32>;
		@group(0) @binding(4) var<storage, read_write> result : array<f32>;

		const SIZE: u32 = %du;
		const EPS: f32 = %g;

		@compute @workgroup_size(256)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= SIZE) { return; }
			let d = delta_in[idx];
			if (abs(d) < EPS) {
				result[idx] = grad_in[idx];
			} else {
				result[idx] = grad_out[idx] * (delta_out[idx] / d);
			}
		}
	`, op.Spec.Size, op.Spec.Eps)
}

func (op *RescaleOp) Compile(ctx *Context, labelPrefix string) error {
	shader := op.GenerateShader()
	module, err := ctx.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          labelPrefix + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shader},
	})
	if err != nil {
		return err
	}

	op.pipeline, err = ctx.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   labelPrefix + "_Pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	return err
}

func (op *RescaleOp) CreateBindGroup(ctx *Context, labelPrefix string) error {
	var err error
	entries := []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: op.DeltaInBuffer, Size: op.DeltaInBuffer.GetSize()},
		{Binding: 1, Buffer: op.DeltaOutBuffer, Size: op.DeltaOutBuffer.GetSize()},
		{Binding: 2, Buffer: op.GradInBuffer, Size: op.GradInBuffer.GetSize()},
		{Binding: 3, Buffer: op.GradOutBuffer, Size: op.GradOutBuffer.GetSize()},
		{Binding: 4, Buffer: op.ResultBuffer, Size: op.ResultBuffer.GetSize()},
	}
	op.bindGroup, err = ctx.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   labelPrefix + "_Bind",
		Layout:  op.pipeline.GetBindGroupLayout(0),
		Entries: entries,
	})
	return err
}

func (op *RescaleOp) Upload(ctx *Context, deltaIn, deltaOut, gradIn, gradOut []float32) {
	ctx.Queue.WriteBuffer(op.DeltaInBuffer, 0, wgpu.ToBytes(deltaIn))
	ctx.Queue.WriteBuffer(op.DeltaOutBuffer, 0, wgpu.ToBytes(deltaOut))
	ctx.Queue.WriteBuffer(op.GradInBuffer, 0, wgpu.ToBytes(gradIn))
	ctx.Queue.WriteBuffer(op.GradOutBuffer, 0, wgpu.ToBytes(gradOut))
}

func (op *RescaleOp) Dispatch(pass *wgpu.ComputePassEncoder) {
	pass.SetPipeline(op.pipeline)
	pass.SetBindGroup(0, op.bindGroup, nil)
	wgx := (op.Spec.Size + 255) / 256
	pass.DispatchWorkgroups(uint32(wgx), 1, 1)
}

func (op *RescaleOp) Download(ctx *Context) ([]float32, error) {
	return ReadBuffer(op.ResultBuffer, op.Spec.Size)
}

func (op *RescaleOp) Cleanup() {
	if op.DeltaInBuffer != nil {
		op.DeltaInBuffer.Destroy()
	}
	if op.DeltaOutBuffer != nil {
		op.DeltaOutBuffer.Destroy()
	}
	if op.GradInBuffer != nil {
		op.GradInBuffer.Destroy()
	}
	if op.GradOutBuffer != nil {
		op.GradOutBuffer.Destroy()
	}
	if op.ResultBuffer != nil {
		op.ResultBuffer.Destroy()
	}
	if op.pipeline != nil {
		op.pipeline.Release()
	}
	if op.bindGroup != nil {
		op.bindGroup.Release()
	}
}

// RunRescale evaluates the guarded difference quotient for four equally
// sized slices on the device and returns the corrected gradient. Device
// arithmetic is single precision; hosts needing float64 roundtrips accept
// the narrowing.
func RunRescale(deltaIn, deltaOut, gradIn, gradOut []float64, eps float64) ([]float64, error) {
	n := len(deltaIn)
	if len(deltaOut) != n || len(gradIn) != n || len(gradOut) != n {
		return nil, fmt.Errorf("rescale inputs must share one length, got %d/%d/%d/%d",
			len(deltaIn), len(deltaOut), len(gradIn), len(gradOut))
	}
	if n == 0 {
		return []float64{}, nil
	}

	c, err := GetContext()
	if err != nil {
		return nil, err
	}

	op := &RescaleOp{Spec: RescaleSpec{Size: n, Eps: float32(eps)}}
	defer op.Cleanup()

	if err := op.AllocateBuffers(c, "Rescale"); err != nil {
		return nil, fmt.Errorf("failed to allocate rescale buffers: %v", err)
	}
	if err := op.Compile(c, "Rescale"); err != nil {
		return nil, fmt.Errorf("failed to compile rescale pipeline: %v", err)
	}
	if err := op.CreateBindGroup(c, "Rescale"); err != nil {
		return nil, fmt.Errorf("failed to create rescale bind group: %v", err)
	}
	op.Upload(c, toFloat32(deltaIn), toFloat32(deltaOut), toFloat32(gradIn), toFloat32(gradOut))

	encoder, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %v", err)
	}
	pass := encoder.BeginComputePass(nil)
	op.Dispatch(pass)
	pass.End()
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finish command: %v", err)
	}
	c.Queue.Submit(cmd)

	out, err := op.Download(c)
	if err != nil {
		return nil, err
	}
	return toFloat64(out), nil
}
