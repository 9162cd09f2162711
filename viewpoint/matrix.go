package viewpoint

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/rdk/spatialmath"
)

// MatrixFromPose converts a pose to a 4x4 homogeneous transform matrix.
func MatrixFromPose(p spatialmath.Pose) *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	rm := p.Orientation().RotationMatrix()
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			m.Set(row, col, rm.At(row, col))
		}
	}
	pt := p.Point()
	m.Set(0, 3, pt.X)
	m.Set(1, 3, pt.Y)
	m.Set(2, 3, pt.Z)
	m.Set(3, 3, 1)
	return m
}

// PoseFromMatrix converts a 4x4 homogeneous transform matrix back to a pose.
// The rotation is routed through a unit quaternion, so a slightly
// non-orthonormal rotation block is re-normalized rather than propagated.
func PoseFromMatrix(m *mat.Dense) (spatialmath.Pose, error) {
	rows, cols := m.Dims()
	if rows != 4 || cols != 4 {
		return nil, ErrNotRigid
	}
	for col := 0; col < 3; col++ {
		if m.At(3, col) != 0 {
			return nil, ErrNotRigid
		}
	}
	if m.At(3, 3) != 1 {
		return nil, ErrNotRigid
	}

	rot := make([]float64, 0, 9)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			rot = append(rot, m.At(row, col))
		}
	}
	rm, err := spatialmath.NewRotationMatrix(rot)
	if err != nil {
		return nil, err
	}
	q := normalizeQuat(rm.Quaternion())
	return spatialmath.NewPose(
		r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)},
		&spatialmath.Quaternion{Real: q.Real, Imag: q.Imag, Jmag: q.Jmag, Kmag: q.Kmag},
	), nil
}

// ComposeMatrices returns the product a*b of two 4x4 transforms.
func ComposeMatrices(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// RigidInverse inverts a rigid transform in closed form: the rotation block
// is transposed and the translation becomes -Rᵀt. Not a general matrix
// inverse; the input must be a rigid transform.
func RigidInverse(m *mat.Dense) *mat.Dense {
	out := mat.NewDense(4, 4, nil)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			out.Set(row, col, m.At(col, row))
		}
	}
	tx, ty, tz := m.At(0, 3), m.At(1, 3), m.At(2, 3)
	for row := 0; row < 3; row++ {
		out.Set(row, 3, -(out.At(row, 0)*tx + out.At(row, 1)*ty + out.At(row, 2)*tz))
	}
	out.Set(3, 3, 1)
	return out
}

// normalizeQuat rescales a quaternion to unit norm. Quaternions straight out
// of a rotation matrix can drift slightly off the unit sphere.
func normalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// PosesAlmostEqual reports whether two poses coincide within floating
// tolerance. Orientation comparison is quaternion-sign agnostic: q and -q
// describe the same rotation and compare equal.
func PosesAlmostEqual(a, b spatialmath.Pose) bool {
	return spatialmath.PoseAlmostEqualEps(a, b, 1e-6)
}
