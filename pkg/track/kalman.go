package track

import "gonum.org/v1/gonum/mat"

// kalmanFilter is the 8-state constant-velocity model from spec §4.4:
// state (cx, cy, w, h, vcx, vcy, vw, vh), F = I + velocity coupling with
// Δt=1 frame, H projects to the first four (position) components. Process
// and measurement noise are diagonal scalars.
type kalmanFilter struct {
	x *mat.VecDense // 8x1 state
	p *mat.Dense    // 8x8 covariance
	f *mat.Dense    // 8x8 transition
	h *mat.Dense    // 4x8 measurement
	q *mat.Dense    // 8x8 process noise
	r *mat.Dense    // 4x4 measurement noise
}

const (
	defaultProcessNoise     = 1e-2
	defaultMeasurementNoise = 1e-1
)

// newKalmanFilter initializes the filter at a measured (cx, cy, w, h) with
// zero initial velocity and identity initial covariance (spec §4.4,
// "Initial covariance P is identity").
func newKalmanFilter(cx, cy, w, h float32) *kalmanFilter {
	f := mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		f.Set(i, i, 1)
	}
	for i := 0; i < 4; i++ {
		f.Set(i, i+4, 1) // position += velocity * dt(=1)
	}

	hMat := mat.NewDense(4, 8, nil)
	for i := 0; i < 4; i++ {
		hMat.Set(i, i, 1)
	}

	q := mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		q.Set(i, i, defaultProcessNoise)
	}

	r := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		r.Set(i, i, defaultMeasurementNoise)
	}

	p := mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		p.Set(i, i, 1)
	}

	x := mat.NewVecDense(8, []float64{float64(cx), float64(cy), float64(w), float64(h), 0, 0, 0, 0})

	return &kalmanFilter{x: x, p: p, f: f, h: hMat, q: q, r: r}
}

// predict advances the state by one frame: x' = Fx, P' = FPF^T + Q.
func (k *kalmanFilter) predict() {
	var xNext mat.VecDense
	xNext.MulVec(k.f, k.x)
	k.x = &xNext

	var fp mat.Dense
	fp.Mul(k.f, k.p)
	var fpft mat.Dense
	fpft.Mul(&fp, k.f.T())
	fpft.Add(&fpft, k.q)
	k.p = &fpft
}

// update corrects the prediction with a (cx, cy, w, h) measurement.
func (k *kalmanFilter) update(cx, cy, w, h float32) {
	z := mat.NewVecDense(4, []float64{float64(cx), float64(cy), float64(w), float64(h)})

	var hx mat.VecDense
	hx.MulVec(k.h, k.x)
	var y mat.VecDense
	y.SubVec(z, &hx)

	var hp mat.Dense
	hp.Mul(k.h, k.p)
	var hpht mat.Dense
	hpht.Mul(&hp, k.h.T())
	var s mat.Dense
	s.Add(&hpht, k.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return
	}

	var pht mat.Dense
	pht.Mul(k.p, k.h.T())
	var kGain mat.Dense
	kGain.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&kGain, &y)
	var xNext mat.VecDense
	xNext.AddVec(k.x, &ky)
	k.x = &xNext

	ident := mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		ident.Set(i, i, 1)
	}
	var kh mat.Dense
	kh.Mul(&kGain, k.h)
	var ikh mat.Dense
	ikh.Sub(ident, &kh)
	var pNext mat.Dense
	pNext.Mul(&ikh, k.p)
	k.p = &pNext
}

// position returns the filter's current (cx, cy, w, h) estimate.
func (k *kalmanFilter) position() (cx, cy, w, h float32) {
	return float32(k.x.AtVec(0)), float32(k.x.AtVec(1)), float32(k.x.AtVec(2)), float32(k.x.AtVec(3))
}
