package quac

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/anthony-santana/QuaC/solver"
)

// ExportCSV writes the most recent Run's trajectory to dir as
// "Time, Population[0], ..., Population[M-1]", one row for the initial
// state followed by one row per accepted step,
// with the filename stamped "_YYYYMMDD_HH:MM:SS" at the instant of export.
// Returns the written path.
func (inst *Instance) ExportCSV(dir string) (string, error) {
	if err := inst.checkLive(); err != nil {
		return "", err
	}
	res, err := inst.Results()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "quac"+stampNow()+".csv")
	if err := writeTimesteppingCSV(path, res, inst.builder.Lindblad); err != nil {
		return "", err
	}
	return path, nil
}

func stampNow() string {
	return "_" + time.Now().Format("20060102_15:04:05")
}

func writeTimesteppingCSV(path string, res *solver.Result, lindblad bool) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "quac: creating csv output")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	m := populationCount(res, lindblad)

	header := make([]string, 0, m+1)
	header = append(header, "Time")
	for i := 0; i < m; i++ {
		header = append(header, "Population["+strconv.Itoa(i)+"]")
	}
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "quac: writing csv header")
	}

	for idx, t := range res.Times {
		row := make([]string, 0, m+1)
		row = append(row, strconv.FormatFloat(t, 'g', -1, 64))
		pops := populations(res.States[idx], lindblad)
		for _, p := range pops {
			row = append(row, strconv.FormatFloat(p, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return errors.Wrap(err, "quac: writing csv row")
		}
	}

	w.Flush()
	return errors.Wrap(w.Error(), "quac: flushing csv output")
}

func populationCount(res *solver.Result, lindblad bool) int {
	if len(res.States) == 0 {
		return 0
	}
	dim := len(res.States[0])
	if lindblad {
		return isqrtExact(dim)
	}
	return dim
}

// populations extracts the diagonal occupation probabilities from a state:
// |y_i|^2 in Schrödinger mode, or Re(rho_ii) recovered from the vectorized
// density matrix in Lindblad mode.
func populations(y []complex128, lindblad bool) []float64 {
	if !lindblad {
		out := make([]float64, len(y))
		for i, c := range y {
			out[i] = real(c)*real(c) + imag(c)*imag(c)
		}
		return out
	}

	n := isqrtExact(len(y))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = real(y[i*n+i])
	}
	return out
}

func isqrtExact(n int) int {
	r := int(math.Sqrt(float64(n)))
	for r*r < n {
		r++
	}
	return r
}
