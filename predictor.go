package scrc

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"io"
	"math"
	"os"
)

// NumFeatures is the width of Features.Vector.
const NumFeatures = 11

// NumPolyFeatures is the number of degree-2 polynomial terms (no bias) of a
// feature vector: the linear terms followed by every pairwise product.
const NumPolyFeatures = NumFeatures + NumFeatures*(NumFeatures+1)/2

// Features is the predictor input built from the current tick.
type Features struct {
	TrackLeft  float64
	TrackRight float64
	TrackAhead float64
	TrackPos   float64
	Angle      float64
	PrevGear   float64
	RPM        float64
	SpeedX     float64
	Diff       float64
	PrevBrake  float64
	CurrBrake  float64
}

// FeaturesOf builds features from a decoded state. The gear reported by the
// server is the gear sent on the previous tick.
func FeaturesOf(s *CarState, prevBrake, currBrake float64) Features {
	return Features{
		TrackLeft:  s.Track[trackLeft],
		TrackRight: s.Track[trackRight],
		TrackAhead: s.Track[trackAhead],
		TrackPos:   s.TrackPos,
		Angle:      s.Angle,
		PrevGear:   float64(s.Gear),
		RPM:        s.RPM,
		SpeedX:     s.SpeedX,
		Diff:       s.Diff(),
		PrevBrake:  prevBrake,
		CurrBrake:  currBrake,
	}
}

// Vector returns the features in model column order.
func (f Features) Vector() []float64 {
	return []float64{
		f.TrackLeft, f.TrackRight, f.TrackAhead, f.TrackPos, f.Angle,
		f.PrevGear, f.RPM, f.SpeedX, f.Diff, f.PrevBrake, f.CurrBrake,
	}
}

// PolynomialFeatures expands x to x_i followed by x_i*x_j for i <= j.
func PolynomialFeatures(x []float64) []float64 {
	out := make([]float64, 0, len(x)+len(x)*(len(x)+1)/2)
	out = append(out, x...)
	for i := range x {
		for j := i; j < len(x); j++ {
			out = append(out, x[i]*x[j])
		}
	}
	return out
}

type Prediction struct {
	Accel float64
	Brake float64
	Steer float64
	Gear  float64
}

type linearModel struct {
	Coef      []float64 `toml:"coef"`
	Intercept float64   `toml:"intercept"`
}

type modelFile struct {
	Accel linearModel `toml:"accel"`
	Brake linearModel `toml:"brake"`
	Steer linearModel `toml:"steer"`
	Gear  linearModel `toml:"gear"`
}

type linearOutput struct {
	coef      *mat.VecDense
	intercept float64
}

func newLinearOutput(name string, m linearModel, width int) (linearOutput, error) {
	if len(m.Coef) != width {
		return linearOutput{}, errors.Errorf("%s model has %d coefficients, expected %d",
			name, len(m.Coef), width)
	}
	return linearOutput{
		coef:      mat.NewVecDense(width, m.Coef),
		intercept: m.Intercept,
	}, nil
}

func (l linearOutput) apply(x *mat.VecDense) float64 {
	return mat.Dot(l.coef, x) + l.intercept
}

// PolynomialModel holds four linear regressions: accel, brake and steer over
// the polynomial expansion of the features, gear over the raw features.
type PolynomialModel struct {
	accel linearOutput
	brake linearOutput
	steer linearOutput
	gear  linearOutput
}

func LoadPolynomialModel(fileName string) (*PolynomialModel, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open model %s", fileName)
	}
	defer file.Close()
	return LoadPolynomialModelFromReader(file)
}

func LoadPolynomialModelFromReader(r io.Reader) (*PolynomialModel, error) {
	var f modelFile
	if _, err := toml.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "unable to decode model")
	}
	m := &PolynomialModel{}
	var err error
	if m.accel, err = newLinearOutput("accel", f.Accel, NumPolyFeatures); err != nil {
		return nil, err
	}
	if m.brake, err = newLinearOutput("brake", f.Brake, NumPolyFeatures); err != nil {
		return nil, err
	}
	if m.steer, err = newLinearOutput("steer", f.Steer, NumPolyFeatures); err != nil {
		return nil, err
	}
	if m.gear, err = newLinearOutput("gear", f.Gear, NumFeatures); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PolynomialModel) Predict(f Features) (Prediction, error) {
	raw := f.Vector()
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, errors.New("non-finite feature")
		}
	}
	poly := mat.NewVecDense(NumPolyFeatures, PolynomialFeatures(raw))
	return Prediction{
		Accel: m.accel.apply(poly),
		Brake: roundTenth(m.brake.apply(poly)),
		Steer: m.steer.apply(poly),
		Gear:  roundTenth(m.gear.apply(mat.NewVecDense(NumFeatures, raw))),
	}, nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
