package quac

import (
	"github.com/pkg/errors"

	"github.com/anthony-santana/QuaC/mat"
	"github.com/anthony-santana/QuaC/superop"
)

// SaveCheckpoint finalizes the builder's assembly if needed, then persists
// the resulting drift matrix, the channel-id table (one unit operator and
// static coefficient per installed dependent term), and a content hash of
// every installed term-tree source string and variable binding to a SQLite
// file at path, grounded in mat/disk.go's DiskMatrix. The hash exists so a
// caller can later use CheckpointMatches to skip a repeat assembly against
// an unchanged Hamiltonian description. Clear does not touch any on-disk
// checkpoint; checkpoints are saved and loaded only on explicit request.
func (inst *Instance) SaveCheckpoint(path string) error {
	if err := inst.checkLive(); err != nil {
		return err
	}
	if err := inst.builder.Finalize(); err != nil {
		return err
	}

	disk, err := mat.NewDiskCOO(path)
	if err != nil {
		return errors.Wrap(err, "quac: opening checkpoint store")
	}
	defer disk.Close()

	disk.Zeros(inst.builder.Drift.Rows(), inst.builder.Drift.Cols())
	disk.Add(1, inst.builder.Drift)

	records := make([]mat.TermRecord, len(inst.builder.Terms))
	for i, term := range inst.builder.Terms {
		records[i] = mat.TermRecord{
			Channel: term.Channel,
			CoeffRe: real(term.StaticCoeff),
			CoeffIm: imag(term.StaticCoeff),
			Unit:    term.Unit,
		}
	}
	if err := disk.SaveTerms(records); err != nil {
		return errors.Wrap(err, "quac: saving checkpoint channel-id table")
	}
	if err := disk.SaveMeta(inst.contentHash()); err != nil {
		return errors.Wrap(err, "quac: saving checkpoint content hash")
	}

	inst.logs.instance.Debug().Str("path", path).Int("terms", len(records)).Msg("saved checkpoint")
	return nil
}

// LoadCheckpoint replaces the builder's drift matrix and dependent-term
// table with the ones stored at path, marking assembly as already finalized
// so a subsequent Run skips re-lifting the (discarded) installed terms.
// lindblad must match whether the checkpointed matrix lives in Liouville
// space (L^2N) or Hilbert space (L^N); a mismatch against the instance's
// qubit/level configuration is a ResourceError.
func (inst *Instance) LoadCheckpoint(path string, lindblad bool) error {
	if err := inst.checkLive(); err != nil {
		return err
	}

	disk, err := mat.NewDiskCOO(path)
	if err != nil {
		return errors.Wrap(err, "quac: opening checkpoint store")
	}
	defer disk.Close()

	loaded, err := disk.COOLoad()
	if err != nil {
		return errors.Wrap(err, "quac: loading checkpoint")
	}

	dim := intPow(inst.levelCount, inst.numQubits)
	wantRows := dim
	if lindblad {
		wantRows = dim * dim
	}
	if loaded.Rows() != wantRows || loaded.Cols() != wantRows {
		return newResourceError("checkpoint shape %dx%d does not match expected %dx%d for lindblad=%v",
			loaded.Rows(), loaded.Cols(), wantRows, wantRows, lindblad)
	}

	records, err := disk.LoadTerms()
	if err != nil {
		return errors.Wrap(err, "quac: loading checkpoint channel-id table")
	}
	terms := make([]superop.DependentTerm, len(records))
	for i, rec := range records {
		terms[i] = superop.DependentTerm{
			Channel:     rec.Channel,
			StaticCoeff: complex(rec.CoeffRe, rec.CoeffIm),
			Unit:        rec.Unit,
		}
	}

	inst.builder.LoadDrift(loaded, terms, lindblad)
	inst.logs.instance.Debug().Str("path", path).Bool("lindblad", lindblad).Int("terms", len(terms)).Msg("loaded checkpoint")
	return nil
}

// CheckpointMatches reports whether the content hash stored in the
// checkpoint at path equals the hash of every term-tree source string and
// variable binding installed on inst so far. A caller can use this to skip
// both LoadCheckpoint and a fresh Finalize when the installed Hamiltonian
// description has not changed since the checkpoint was written.
func (inst *Instance) CheckpointMatches(path string) (bool, error) {
	if err := inst.checkLive(); err != nil {
		return false, err
	}

	disk, err := mat.NewDiskCOO(path)
	if err != nil {
		return false, errors.Wrap(err, "quac: opening checkpoint store")
	}
	defer disk.Close()

	stored, ok, err := disk.LoadMeta()
	if err != nil {
		return false, errors.Wrap(err, "quac: loading checkpoint content hash")
	}
	return ok && stored == inst.contentHash(), nil
}

func intPow(base, exp int) int {
	n := 1
	for i := 0; i < exp; i++ {
		n *= base
	}
	return n
}
