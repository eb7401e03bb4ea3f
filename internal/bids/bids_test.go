package bids

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDescriptor(t *testing.T, sub, ses, typ string, c Components, fm FieldmapCase) Descriptor {
	t.Helper()
	d, err := NewDescriptor(sub, ses, typ, c, fm)
	require.NoError(t, err)
	return d
}

func TestRenderOrdering(t *testing.T) {
	d := mustDescriptor(t, "01", "pre", TypeFunc, Components{
		Task: "rest", Acq: "mb3", Ce: "gd", Dir: "AP", Rec: "norm", Run: "02", Echo: "1", Label: "bold",
	}, FieldmapCase{})

	names, err := Render(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-01_ses-pre_task-rest_acq-mb3_ce-gd_dir-AP_rec-norm_run-02_echo-1_bold"}, names)
}

func TestRenderOmitsEmptyComponents(t *testing.T) {
	d := mustDescriptor(t, "01", "", TypeAnat, Components{Run: "01", Label: "T1w"}, FieldmapCase{})
	names, err := Render(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-01_run-01_T1w"}, names)
}

func TestNewDescriptorDropsForeignComponents(t *testing.T) {
	d := mustDescriptor(t, "01", "", TypeAnat, Components{
		Task: "rest", Dir: "AP", Echo: "2", Acq: "mprage", Run: "01", Label: "T1w",
	}, FieldmapCase{})
	names, err := Render(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-01_acq-mprage_run-01_T1w"}, names)
}

func TestNewDescriptorValidation(t *testing.T) {
	tests := []struct {
		name string
		sub  string
		typ  string
		c    Components
		fm   FieldmapCase
	}{
		{"missing subject", "", TypeAnat, Components{Label: "T1w"}, FieldmapCase{}},
		{"anat without label", "01", TypeAnat, Components{}, FieldmapCase{}},
		{"func without task", "01", TypeFunc, Components{Label: "bold"}, FieldmapCase{}},
		{"func without label", "01", TypeFunc, Components{Task: "rest"}, FieldmapCase{}},
		{"fmap without case", "01", TypeFmap, Components{}, FieldmapCase{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDescriptor(tc.sub, "", tc.typ, tc.c, tc.fm)
			assert.ErrorIs(t, err, ErrName)
		})
	}
}

func TestNewDescriptorDefaults(t *testing.T) {
	dwi := mustDescriptor(t, "01", "", TypeDWI, Components{}, FieldmapCase{})
	assert.Equal(t, "dwi", dwi.Label)

	unknown := mustDescriptor(t, "01", "", "", Components{}, FieldmapCase{})
	assert.Equal(t, TypeUnknown, unknown.ModalityType)
	assert.Equal(t, TypeUnknown, unknown.Label)

	anat := mustDescriptor(t, "01", "", TypeAnat, Components{Label: "T1w"}, FieldmapCase{Kind: FieldmapCase1, Mag2: true})
	assert.Equal(t, FieldmapNone, anat.Fieldmap.Kind)
}

func TestRenderRequiresRun(t *testing.T) {
	d := mustDescriptor(t, "01", "", TypeAnat, Components{Label: "T1w"}, FieldmapCase{})
	_, err := Render(d)
	assert.ErrorIs(t, err, ErrName)
}

func TestFieldmapNames(t *testing.T) {
	tests := []struct {
		name string
		fm   FieldmapCase
		want []string
	}{
		{"case1", FieldmapCase{Kind: FieldmapCase1}, []string{
			"sub-01_run-01_phasediff", "sub-01_run-01_magnitude1",
		}},
		{"case1 mag2", FieldmapCase{Kind: FieldmapCase1, Mag2: true}, []string{
			"sub-01_run-01_phasediff", "sub-01_run-01_magnitude1", "sub-01_run-01_magnitude2",
		}},
		{"case2", FieldmapCase{Kind: FieldmapCase2}, []string{
			"sub-01_run-01_phase1", "sub-01_run-01_phase2", "sub-01_run-01_magnitude1", "sub-01_run-01_magnitude2",
		}},
		{"case3", FieldmapCase{Kind: FieldmapCase3}, []string{
			"sub-01_run-01_magnitude", "sub-01_run-01_fieldmap",
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := mustDescriptor(t, "01", "", TypeFmap, Components{Run: "01", Dir: "AP"}, tc.fm)
			names, err := Render(d)
			require.NoError(t, err)
			assert.Equal(t, tc.want, names)
		})
	}
}

func TestFieldmapCase4CarriesDirection(t *testing.T) {
	d := mustDescriptor(t, "01", "a", TypeFmap, Components{Acq: "se", Ce: "gd", Dir: "PA", Run: "01"},
		FieldmapCase{Kind: FieldmapCase4})
	names, err := Render(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-01_ses-a_acq-se_ce-gd_dir-PA_run-01_epi"}, names)
}

func TestResolveFieldmapCase(t *testing.T) {
	got, err := ResolveFieldmapCase(4, nil)
	require.NoError(t, err)
	assert.Equal(t, FieldmapCase{Kind: FieldmapCase2}, got)

	got, err = ResolveFieldmapCase(3, nil)
	require.NoError(t, err)
	assert.Equal(t, FieldmapCase{Kind: FieldmapCase1, Mag2: true}, got)

	got, err = ResolveFieldmapCase(1, nil)
	require.NoError(t, err)
	assert.Equal(t, FieldmapCase{Kind: FieldmapCase4}, got)

	// The two-image branch is approximate; these document its behaviour.
	got, err = ResolveFieldmapCase(2, []string{"/tmp/x/b0_mag.nii.gz", "/tmp/x/b0_map.nii.gz"})
	require.NoError(t, err)
	assert.Equal(t, FieldmapCase{Kind: FieldmapCase3}, got)

	got, err = ResolveFieldmapCase(2, []string{"/data/b0_e1.nii", "/data/b0_e2.nii"})
	require.NoError(t, err)
	assert.Equal(t, FieldmapCase{Kind: FieldmapCase1}, got)

	for _, n := range []int{0, 5, 6} {
		_, err = ResolveFieldmapCase(n, nil)
		assert.ErrorIs(t, err, ErrUnsupportedFieldmap)
	}
}

func TestResolveRun(t *testing.T) {
	root := t.TempDir()
	d := mustDescriptor(t, "01", "", TypeAnat, Components{Acq: "mprage", Label: "T1w"}, FieldmapCase{})
	dir := OutputDir(root, d)

	run, err := ResolveRun(dir, d, 2)
	require.NoError(t, err)
	assert.Equal(t, "01", run)

	require.NoError(t, os.MkdirAll(dir, 0o750))
	run, err = ResolveRun(dir, d, 2)
	require.NoError(t, err)
	assert.Equal(t, "01", run)

	d.Run = run
	names, err := Render(d)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, names[0]+".nii.gz"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, names[0]+".json"), nil, 0o600))

	d.Run = ""
	run, err = ResolveRun(dir, d, 2)
	require.NoError(t, err)
	assert.Equal(t, "02", run)

	other := mustDescriptor(t, "01", "", TypeAnat, Components{Label: "T2w"}, FieldmapCase{})
	run, err = ResolveRun(dir, other, 3)
	require.NoError(t, err)
	assert.Equal(t, "001", run)
}

func TestOutputDir(t *testing.T) {
	d := mustDescriptor(t, "01", "", TypeDWI, Components{}, FieldmapCase{})
	assert.Equal(t, filepath.Join("out", "sub-01", "dwi"), OutputDir("out", d))

	d.Session = "02"
	assert.Equal(t, filepath.Join("out", "sub-01", "ses-02", "dwi"), OutputDir("out", d))
}

func TestZeroPad(t *testing.T) {
	assert.Equal(t, "01", ZeroPad(1, 2))
	assert.Equal(t, "0000012", ZeroPad(12, 7))
	assert.Equal(t, "123", ZeroPad(123, 2))
}

func TestPadRun(t *testing.T) {
	assert.Equal(t, "01", PadRun("1", 2))
	assert.Equal(t, "003", PadRun("03", 3))
	assert.Equal(t, "12", PadRun("12", 2))
	assert.Equal(t, "pre", PadRun("pre", 2))
	assert.Equal(t, "", PadRun("", 2))
}

func TestDWIAcqSuffix(t *testing.T) {
	te := 0.093
	assert.Equal(t, "b800b2000TE93", DWIAcqSuffix("", []float64{0, 800, 2000, 800, 0, 2000}, &te))
	assert.Equal(t, "hardib1000", DWIAcqSuffix("hardi", []float64{1000, 0}, nil))
	assert.Equal(t, "", DWIAcqSuffix("", []float64{0, 0}, nil))
}

func TestParseBvals(t *testing.T) {
	got, err := ParseBvals("0 1000 1000\n2000\n")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1000, 1000, 2000}, got)

	_, err = ParseBvals("0 abc")
	assert.Error(t, err)
}
