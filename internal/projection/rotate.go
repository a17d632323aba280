package projection

import (
	"errors"

	"eggjnd/pkg/domain"

	"gonum.org/v1/gonum/mat"
)

var errParallel = errors.New("directions are parallel")

// orthonormal returns the right-handed orthonormal basis whose first vector
// is along a and whose second lies in the plane of a and b (Gram-Schmidt).
func orthonormal(a, b domain.Vec3, tol float64) ([3]domain.Vec3, error) {
	na := a.Norm()
	if na == 0 {
		return [3]domain.Vec3{}, errors.New("zero direction")
	}
	e1 := a.Scale(1 / na)
	u := b.Sub(e1.Scale(b.Dot(e1)))
	if u.Norm() <= tol*b.Norm() || b.Norm() == 0 {
		return [3]domain.Vec3{}, errParallel
	}
	e2 := u.Scale(1 / u.Norm())
	return [3]domain.Vec3{e1, e2, e1.Cross(e2)}, nil
}

// rotation returns the orthogonal matrix taking the source basis onto the
// target basis, R = T·Sᵀ.
func rotation(src, dst [3]domain.Vec3) *mat.Dense {
	s := mat.NewDense(3, 3, nil)
	t := mat.NewDense(3, 3, nil)
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			s.Set(r, c, src[c][r])
			t.Set(r, c, dst[c][r])
		}
	}
	var rot mat.Dense
	rot.Mul(t, s.T())
	return &rot
}

func apply(rot *mat.Dense, v domain.Vec3) domain.Vec3 {
	var out mat.VecDense
	out.MulVec(rot, mat.NewVecDense(3, v[:]))
	return domain.Vec3{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}
