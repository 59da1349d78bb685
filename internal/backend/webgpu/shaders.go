package webgpu

// Workgroup tile sizes; keep in sync with the @workgroup_size attributes.
const (
	matmulTile      = 16
	batchMatMulTile = 8
)

// matmulShader computes C = A @ B for A [M, K] and B [K, N].
const matmulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    M: u32,
    K: u32,
    N: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;
    if (row >= params.M || col >= params.N) {
        return;
    }

    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < params.K; k = k + 1u) {
        sum = sum + a[row * params.K + k] * b[k * params.N + col];
    }
    result[row * params.N + col] = sum;
}
`

// batchMatMulShader computes C[i] = A[i] @ B[i] for every batch entry i.
// Attention flattens [batch, heads] into the batch axis.
const batchMatMulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    batch: u32,
    M: u32,
    K: u32,
    N: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let bi = global_id.z;
    let row = global_id.y;
    let col = global_id.x;
    if (bi >= params.batch || row >= params.M || col >= params.N) {
        return;
    }

    let a_off = bi * params.M * params.K;
    let b_off = bi * params.K * params.N;
    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < params.K; k = k + 1u) {
        sum = sum + a[a_off + row * params.K + k] * b[b_off + k * params.N + col];
    }
    result[bi * params.M * params.N + row * params.N + col] = sum;
}
`
