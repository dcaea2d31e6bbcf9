package sweep_test

import (
	"context"
	"errors"
	"fmt"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/snoopython/wradex/internal/grid"
	"github.com/snoopython/wradex/internal/solver"
	"github.com/snoopython/wradex/internal/sweep"
	"github.com/snoopython/wradex/internal/units"
)

var (
	kelvin = units.MustParse("K")
	perCC  = units.MustParse("cm^-3")
	kms    = units.MustParse("km/s")
)

// fakeSolver derives T_ex from T_kin and tau from n_H2. A T_kin of 13 K
// produces unparseable output.
type fakeSolver struct {
	calls    int
	requests []solver.Request
	err      error
}

func (f *fakeSolver) Invoke(_ context.Context, req solver.Request) (solver.Record, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if req.Params["T_kin"] == 13 {
		return solver.NaNRecord([]string{"T_ex", "tau"}), fmt.Errorf("%w: bad line", solver.ErrOutputParse)
	}
	return solver.Record{
		"T_ex": 2 * req.Params["T_kin"],
		"tau":  req.Params["n_H2"] / 1e3,
	}, nil
}

var outputs = []sweep.Output{
	{Name: "T_ex", Unit: kelvin},
	{Name: "tau", Unit: units.Dimensionless},
}

func newGrid(params map[string]units.Quantity) *grid.Grid {
	g, err := grid.New(
		[]string{"T_kin", "n_H2", "dv"},
		params,
		map[string]units.Unit{"T_kin": kelvin, "n_H2": perCC, "dv": kms},
	)
	Expect(err).NotTo(HaveOccurred())
	return g
}

func scalars() map[string]units.Quantity {
	return map[string]units.Quantity{
		"T_kin": units.Scalar(20, kelvin),
		"n_H2":  units.Scalar(1e3, perCC),
		"dv":    units.Scalar(1, kms),
	}
}

var base = solver.Request{Moldata: "co.dat", FreqMin: 115.27, FreqMax: 115.272}

var _ = Describe("Engine", func() {
	var (
		fake   *fakeSolver
		engine *sweep.Engine
		ctx    context.Context
	)

	BeforeEach(func() {
		fake = &fakeSolver{}
		engine = sweep.New(fake, outputs)
		ctx = context.Background()
	})

	Context("with only scalar parameters", func() {
		It("invokes once and reports scalars", func() {
			res, err := engine.Run(ctx, newGrid(scalars()), base)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.calls).To(Equal(1))

			Expect(res.Shape).To(BeEmpty())
			Expect(res.Axes).To(BeEmpty())
			for _, name := range res.OutputOrder {
				Expect(res.Outputs[name].IsScalar()).To(BeTrue(), name)
			}
			for _, name := range res.ParamOrder {
				Expect(res.Params[name].IsScalar()).To(BeTrue(), name)
			}
			Expect(res.Outputs["T_ex"].Value()).To(Equal(40.0))
			Expect(res.Outputs["T_ex"].Unit.String()).To(Equal("K"))
		})

		It("passes the frequency window and data file to the solver", func() {
			res, err := engine.Run(ctx, newGrid(scalars()), base)
			Expect(err).NotTo(HaveOccurred())

			Expect(fake.requests).To(HaveLen(1))
			Expect(fake.requests[0].Moldata).To(Equal("co.dat"))
			Expect(fake.requests[0].FreqMin).To(Equal(115.27))
			Expect(fake.requests[0].Params).To(HaveKeyWithValue("dv", 1.0))

			Expect(res.Moldata).To(Equal("co.dat"))
			Expect(res.FreqMax.Value()).To(Equal(115.272))
			Expect(res.FreqMax.Unit.String()).To(Equal("GHz"))
		})
	})

	Context("with array parameters", func() {
		It("fills outputs in row-major order", func() {
			p := scalars()
			p["T_kin"] = units.Array([]float64{10, 20, 30}, kelvin)
			p["n_H2"] = units.Array([]float64{1e3, 1e4}, perCC)

			res, err := engine.Run(ctx, newGrid(p), base)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.calls).To(Equal(6))
			Expect(res.Shape).To(Equal([]int{3, 2}))
			Expect(res.Axes).To(Equal([]string{"T_kin", "n_H2"}))

			tex := res.Outputs["T_ex"]
			Expect(tex.Shape()).To(Equal([]int{3, 2}))
			Expect(tex.Values()).To(Equal([]float64{20, 20, 40, 40, 60, 60}))
			Expect(res.Outputs["tau"].Values()).To(Equal([]float64{1, 10, 1, 10, 1, 10}))

			Expect(res.Params["T_kin"].Shape()).To(Equal([]int{3, 2}))
			Expect(res.Params["dv"].IsScalar()).To(BeTrue())
		})

		It("squeezes length-one axes", func() {
			p := scalars()
			p["T_kin"] = units.Array([]float64{10, 20, 30}, kelvin)
			p["dv"] = units.Array([]float64{2}, kms)

			res, err := engine.Run(ctx, newGrid(p), base)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Shape).To(Equal([]int{3, 1}))
			Expect(res.Axes).To(Equal([]string{"T_kin"}))
			Expect(res.Outputs["T_ex"].Shape()).To(Equal([]int{3}))
			Expect(res.Params["T_kin"].Shape()).To(Equal([]int{3}))
			Expect(res.Params["dv"].IsScalar()).To(BeTrue())
			Expect(res.Params["dv"].Value()).To(Equal(2.0))
		})

		It("returns arrays addressable by coordinate", func() {
			p := scalars()
			p["T_kin"] = units.Array([]float64{10, 20, 30}, kelvin)
			p["n_H2"] = units.Array([]float64{1e3, 2e3}, perCC)

			res, err := engine.Run(ctx, newGrid(p), base)
			Expect(err).NotTo(HaveOccurred())

			tex := res.Outputs["T_ex"].Data
			Expect(tex.Get(1, 0)).To(Equal(40.0))
			Expect(tex.Get(2, 1)).To(Equal(60.0))
			Expect(res.Outputs["tau"].Data.Get(0, 1)).To(Equal(2.0))
			Expect(res.Params["n_H2"].Data.Get(2, 1)).To(Equal(2e3))

			p["n_H2"] = units.Scalar(1e3, perCC)
			res, err = engine.Run(ctx, newGrid(p), base)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outputs["T_ex"].Data.Get(1)).To(Equal(40.0))
			Expect(res.Params["T_kin"].Data.Get(2)).To(Equal(30.0))
			Expect(res.FreqMin.Data.Get()).To(Equal(base.FreqMin))
		})

		It("collapses a parameter that is constant across the grid", func() {
			p := scalars()
			p["T_kin"] = units.Array([]float64{15, 15}, kelvin)
			p["n_H2"] = units.Array([]float64{1e3, 1e4}, perCC)

			res, err := engine.Run(ctx, newGrid(p), base)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Params["T_kin"].IsScalar()).To(BeTrue())
			Expect(res.Params["T_kin"].Value()).To(Equal(15.0))
			Expect(res.Params["n_H2"].Shape()).To(Equal([]int{2, 2}))
		})

		It("is idempotent", func() {
			p := scalars()
			p["T_kin"] = units.Array([]float64{10, 13, 30}, kelvin)

			first, err := engine.Run(ctx, newGrid(p), base)
			Expect(err).NotTo(HaveOccurred())
			second, err := engine.Run(ctx, newGrid(p), base)
			Expect(err).NotTo(HaveOccurred())

			for _, name := range first.OutputOrder {
				a, b := first.Outputs[name].Values(), second.Outputs[name].Values()
				Expect(b).To(HaveLen(len(a)))
				for i := range a {
					if math.IsNaN(a[i]) {
						Expect(math.IsNaN(b[i])).To(BeTrue())
						continue
					}
					Expect(b[i]).To(Equal(a[i]))
				}
			}
		})
	})

	Context("when the solver fails", func() {
		It("records NaN for unparseable cells and keeps the shape", func() {
			p := scalars()
			p["T_kin"] = units.Array([]float64{10, 13, 30}, kelvin)

			res, err := engine.Run(ctx, newGrid(p), base)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Failed).To(Equal(1))
			Expect(res.Cells).To(Equal(3))

			tex := res.Outputs["T_ex"].Values()
			Expect(tex).To(HaveLen(3))
			Expect(tex[0]).To(Equal(20.0))
			Expect(math.IsNaN(tex[1])).To(BeTrue())
			Expect(tex[2]).To(Equal(60.0))
		})

		It("aborts on execution errors", func() {
			fake.err = &solver.ExecError{Path: "radex", Wrapped: errors.New("exec: not found")}
			p := scalars()
			p["T_kin"] = units.Array([]float64{10, 20}, kelvin)

			_, err := engine.Run(ctx, newGrid(p), base)
			Expect(err).To(MatchError(solver.ErrSolverExecution))
			Expect(fake.calls).To(Equal(1))
		})

		It("stops when the context is canceled", func() {
			cctx, cancel := context.WithCancel(ctx)
			engine.AddObserver(sweep.ObserverFunc(func(grid.Cell, solver.Record, int, int) { cancel() }))
			p := scalars()
			p["T_kin"] = units.Array([]float64{10, 20, 30}, kelvin)

			_, err := engine.Run(cctx, newGrid(p), base)
			Expect(err).To(MatchError(context.Canceled))
			Expect(fake.calls).To(Equal(1))
		})
	})

	It("notifies observers after every cell", func() {
		var seen []int
		engine.AddObserver(sweep.ObserverFunc(func(c grid.Cell, rec solver.Record, done, total int) {
			Expect(total).To(Equal(3))
			seen = append(seen, done)
		}))
		p := scalars()
		p["T_kin"] = units.Array([]float64{10, 20, 30}, kelvin)

		_, err := engine.Run(ctx, newGrid(p), base)
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal([]int{1, 2, 3}))
	})
})

var _ = Describe("Squeeze", func() {
	DescribeTable("removes length-one axes",
		func(shape, want []int) {
			got := sweep.Squeeze(units.NewDense(shape...))
			Expect(got.Shape).To(Equal(want))
			Expect(got.Get(make([]int, len(want))...)).To(Equal(0.0))
		},
		Entry("scalar", []int{}, []int{}),
		Entry("all ones", []int{1, 1}, []int{}),
		Entry("leading one", []int{1, 3}, []int{3}),
		Entry("interior one", []int{2, 1, 3}, []int{2, 3}),
		Entry("no ones", []int{2, 3}, []int{2, 3}),
	)
})
