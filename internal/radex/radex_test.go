package radex_test

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/snoopython/wradex/internal/config"
	"github.com/snoopython/wradex/internal/moldata"
	"github.com/snoopython/wradex/internal/radex"
	"github.com/snoopython/wradex/internal/solver"
	"github.com/snoopython/wradex/internal/units"
)

const twoLevelCO = `!MOLECULE
CO
!MOLECULAR WEIGHT
28.0
!NUMBER OF ENERGY LEVELS
2
!LEVEL + ENERGIES(cm^-1) + WEIGHT + J
    1     0.000000000  1.0     0
    2     3.845033413  3.0     1
!NUMBER OF RADIATIVE TRANSITIONS
1
!TRANS + UP + LOW + EINSTEINA(s^-1) + FREQ(GHz) + E_u(K)
    1     2     1  1e-5          115.27     5.5
`

// fakeRadex answers the default prompt script, echoing T_kin as the
// excitation temperature, n_H2 as the optical depth and dv as the flux.
const fakeRadex = `#!/bin/sh
read moldata
read out
read fmin fmax
read tkin
read npart
read partner
read nh2
read tbg
read ncol
read dv
read more
echo "$moldata $fmin $fmax" > LOGPATH
cat > "$out" <<EOF
Calculation finished in   4 iterations
      LINE         E_UP       FREQ        WAVEL     T_EX      TAU        T_R       POP        POP       FLUX        FLUX
                    (K)       (GHz)       (um)      (K)                 (K)        UP        LOW      (K*km/s) (erg/cm2/s)
1      -- 0          5.5    115.2712   2600.7576   $tkin  $nh2  1.0   4.0E-01   3.0E-01   $dv  1.0E-08
EOF
`

type countingInvoker struct {
	calls    int
	requests []solver.Request
}

func (c *countingInvoker) Invoke(_ context.Context, req solver.Request) (solver.Record, error) {
	c.calls++
	c.requests = append(c.requests, req)
	return solver.Record{
		"E_UP": 5.5, "FREQ": 115.27, "WAVEL": 2600.8, "T_ex": req.Params["T_kin"],
		"tau": 0.1, "T_R": 1, "POP_UP": 0.4, "POP_LOW": 0.3, "FLUX_Kkms": 1, "FLUX_ergs": 1e-8,
	}, nil
}

func testConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.MoldataDir = filepath.Join(dir, "moldata")
	cfg.MoldataList = map[string]string{"CO": "co.dat", "HCN": "hcn.dat"}
	cfg.RadexOutput = filepath.Join(dir, "radex.out")
	cfg.RadexLog = filepath.Join(dir, "radex.log")
	return cfg
}

func writeMoldata(cfg *config.Config, name, data string) {
	Expect(os.MkdirAll(cfg.MoldataDir, 0755)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(cfg.MoldataDir, name), []byte(data), 0644)).To(Succeed())
}

var _ = Describe("Calculator", func() {
	var (
		ctx context.Context
		cfg *config.Config
		inv *countingInvoker
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = testConfig(GinkgoT().TempDir())
		inv = &countingInvoker{}
	})

	Describe("New", func() {
		It("rejects species outside the catalog", func() {
			_, err := radex.New(ctx, cfg, "unobtainium", radex.WithInvoker(inv), radex.WithFetcher(nil))
			Expect(err).To(MatchError(moldata.ErrDataNotFound))
		})

		It("fails when the data file is missing and downloads are disabled", func() {
			_, err := radex.New(ctx, cfg, "HCN", radex.WithInvoker(inv), radex.WithFetcher(nil))
			Expect(err).To(MatchError(moldata.ErrDataNotFound))
		})

		It("fails on malformed data", func() {
			writeMoldata(cfg, "co.dat", "!MOLECULE\nCO\n")
			_, err := radex.New(ctx, cfg, "CO", radex.WithInvoker(inv), radex.WithFetcher(nil))
			Expect(err).To(MatchError(moldata.ErrMalformedData))
		})

		It("rejects a parameter without an input unit", func() {
			writeMoldata(cfg, "co.dat", twoLevelCO)
			var kept config.Entries
			for _, e := range cfg.RadexInputUnits {
				if e.Name != "dv" {
					kept = append(kept, e)
				}
			}
			cfg.RadexInputUnits = kept

			_, err := radex.New(ctx, cfg, "CO", radex.WithInvoker(inv), radex.WithFetcher(nil))
			Expect(err).To(MatchError(config.ErrInvalidConfig))
			Expect(err.Error()).To(ContainSubstring("dv"))
		})

		It("rejects a default whose unit does not match its input unit", func() {
			writeMoldata(cfg, "co.dat", twoLevelCO)
			cfg.RadexParams.Set("T_bg", "2.73 km/s")

			_, err := radex.New(ctx, cfg, "CO", radex.WithInvoker(inv), radex.WithFetcher(nil))
			Expect(err).To(MatchError(config.ErrInvalidConfig))
			Expect(inv.calls).To(BeZero())
		})

		It("downloads a missing data file", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(twoLevelCO))
			}))
			DeferCleanup(srv.Close)

			calc, err := radex.New(ctx, cfg, "CO",
				radex.WithInvoker(inv), radex.WithFetcher(moldata.NewHTTPFetcher(srv.URL)))
			Expect(err).NotTo(HaveOccurred())
			Expect(calc.Transitions()).To(Equal([]string{"1-0"}))
			Expect(filepath.Join(cfg.MoldataDir, "co.dat")).To(BeARegularFile())
		})

		It("exposes the parsed data and defaults", func() {
			writeMoldata(cfg, "co.dat", twoLevelCO)
			calc, err := radex.New(ctx, cfg, "CO", radex.WithInvoker(inv), radex.WithFetcher(nil))
			Expect(err).NotTo(HaveOccurred())

			Expect(calc.String()).To(Equal("RADEX(CO)"))
			Expect(calc.Species()).To(Equal("CO"))
			Expect(calc.MoldataFile()).To(Equal("co.dat"))
			Expect(calc.Molecule()).To(Equal("CO"))
			Expect(calc.EnergyLevels()).To(HaveLen(2))
			Expect(calc.ParamNames()).To(Equal([]string{"T_kin", "n_H2", "T_bg", "N_mol", "dv"}))

			tr, ok := calc.Transition("1-0")
			Expect(ok).To(BeTrue())
			Expect(tr.AUL).To(Equal(1e-5))
			Expect(tr.FreqRest).To(Equal(115.27))
			Expect(tr.EUpper).To(Equal(5.5))

			tkin, ok := calc.Param("T_kin")
			Expect(ok).To(BeTrue())
			Expect(tkin.String()).To(Equal("20 K"))
			_, ok = calc.Param("T_dust")
			Expect(ok).To(BeFalse())
			Expect(calc.Defaults()).To(HaveLen(5))
		})
	})

	Describe("Run", func() {
		var calc *radex.Calculator

		BeforeEach(func() {
			writeMoldata(cfg, "co.dat", twoLevelCO)
			var err error
			calc, err = radex.New(ctx, cfg, "CO", radex.WithInvoker(inv), radex.WithFetcher(nil))
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects an unknown transition before touching the solver", func() {
			_, err := calc.Run(ctx, "2-1", nil)
			Expect(err).To(MatchError(radex.ErrUnknownTransition))
			Expect(inv.calls).To(BeZero())
			Expect(cfg.RadexOutput).NotTo(BeAnExistingFile())
		})

		It("rejects an unknown override", func() {
			_, err := calc.Run(ctx, "1-0", map[string]units.Quantity{
				"T_dust": units.Scalar(20, units.MustParse("K")),
			})
			Expect(err).To(MatchError(radex.ErrInvalidParameter))
			Expect(inv.calls).To(BeZero())
		})

		It("rejects an override in an incompatible unit", func() {
			_, err := calc.Run(ctx, "1-0", map[string]units.Quantity{
				"T_kin": units.Scalar(20, units.MustParse("km/s")),
			})
			Expect(err).To(MatchError(radex.ErrInvalidParameter))
			Expect(inv.calls).To(BeZero())
		})

		It("rejects an empty array", func() {
			_, err := calc.Run(ctx, "1-0", map[string]units.Quantity{
				"T_kin": units.Array(nil, units.MustParse("K")),
			})
			Expect(err).To(MatchError(radex.ErrInvalidParameter))
			Expect(inv.calls).To(BeZero())
		})

		It("sweeps a temperature array", func() {
			res, err := calc.Run(ctx, "1-0", map[string]units.Quantity{
				"T_kin": units.Array([]float64{10, 20, 30}, units.MustParse("K")),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.calls).To(Equal(3))

			for _, name := range res.OutputOrder {
				Expect(res.Outputs[name].Shape()).To(Equal([]int{3}), name)
			}
			Expect(res.Outputs["T_ex"].Values()).To(Equal([]float64{10, 20, 30}))
			Expect(res.Params["T_kin"].Shape()).To(Equal([]int{3}))
			for _, name := range []string{"n_H2", "T_bg", "N_mol", "dv"} {
				Expect(res.Params[name].IsScalar()).To(BeTrue(), name)
			}
			Expect(res.Axes).To(Equal([]string{"T_kin"}))
		})

		It("centres the frequency window on the rest frequency", func() {
			res, err := calc.Run(ctx, "1-0", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.requests).To(HaveLen(1))
			Expect(inv.requests[0].FreqMin).To(BeNumerically("~", 115.269, 1e-9))
			Expect(inv.requests[0].FreqMax).To(BeNumerically("~", 115.271, 1e-9))
			Expect(inv.requests[0].Moldata).To(Equal("co.dat"))
			Expect(res.FreqMin.Unit.String()).To(Equal("GHz"))
		})

		It("converts overrides to the solver input unit", func() {
			_, err := calc.Run(ctx, "1-0", map[string]units.Quantity{
				"n_H2": units.Scalar(1e10, units.MustParse("m^-3")),
				"dv":   units.Scalar(500, units.MustParse("m/s")),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.requests[0].Params["n_H2"]).To(BeNumerically("~", 1e4, 1e-6))
			Expect(inv.requests[0].Params["dv"]).To(BeNumerically("~", 0.5, 1e-12))
		})
	})

	It("drives the executable end to end", func() {
		dir := GinkgoT().TempDir()
		script := filepath.Join(dir, "radex")
		body := strings.ReplaceAll(fakeRadex, "LOGPATH", cfg.RadexLog)
		Expect(os.WriteFile(script, []byte(body), 0755)).To(Succeed())
		cfg.RadexPath = script
		writeMoldata(cfg, "co.dat", twoLevelCO)

		calc, err := radex.New(ctx, cfg, "CO", radex.WithFetcher(nil))
		Expect(err).NotTo(HaveOccurred())

		res, err := calc.Run(ctx, "1-0", map[string]units.Quantity{
			"T_kin": units.Array([]float64{10, 20, 30}, units.MustParse("K")),
			"n_H2":  units.Array([]float64{1e3, 1e4}, units.MustParse("cm^-3")),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Failed).To(BeZero())
		Expect(res.Outputs["T_ex"].Shape()).To(Equal([]int{3, 2}))
		Expect(res.Outputs["T_ex"].Values()).To(Equal([]float64{10, 10, 20, 20, 30, 30}))
		Expect(res.Outputs["tau"].Values()).To(Equal([]float64{1e3, 1e4, 1e3, 1e4, 1e3, 1e4}))
		Expect(res.Outputs["FLUX_Kkms"].Unit.String()).To(Equal("K km/s"))

		flux := res.Outputs["FLUX_Kkms"].Values()
		for _, v := range flux {
			Expect(math.IsNaN(v)).To(BeFalse())
		}
		Expect(cfg.RadexOutput).NotTo(BeAnExistingFile())
		Expect(cfg.RadexLog).NotTo(BeAnExistingFile())
	})
})
