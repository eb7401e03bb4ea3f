package metadata

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestIsCamelCase(t *testing.T) {
	valid := []string{"EchoTime", "BIDSVersion", "TaskName", "Manufacturer"}
	invalid := []string{"", "echoTime", "echo_time", "Echo_Time", "ECHOTIME", "echotime"}

	for _, s := range valid {
		assert.True(t, IsCamelCase(s), s)
	}
	for _, s := range invalid {
		assert.False(t, IsCamelCase(s), s)
	}
}

func TestAssemblePrecedence(t *testing.T) {
	rec, err := Assemble(Inputs{
		FileDerived: Values{{Key: "EchoTime", Value: 0.03}, {Key: "RepetitionTime", Value: 2.0}},
		Common:      Values{{Key: "EchoTime", Value: 0.025}, {Key: "InstitutionName", Value: "Study"}},
		Modality:    Values{{Key: "EchoTime", Value: 0.02}},
	})
	require.NoError(t, err)

	v, ok := rec.Get("EchoTime")
	require.True(t, ok)
	assert.Equal(t, 0.02, v)

	v, _ = rec.Get("RepetitionTime")
	assert.Equal(t, 2.0, v)
}

func TestAssembleCommonOverridesFileDerived(t *testing.T) {
	rec, err := Assemble(Inputs{
		FileDerived: Values{{Key: "MultibandAccelerationFactor", Value: 1}},
		Common:      Values{{Key: "MultibandAccelerationFactor", Value: 3}},
	})
	require.NoError(t, err)
	v, _ := rec.Get("MultibandAccelerationFactor")
	assert.Equal(t, 3, v)
}

func TestAssembleOrderAndExclusions(t *testing.T) {
	rec, err := Assemble(Inputs{
		Sidecar: Values{
			{Key: "RepetitionTime", Value: 2.0},
			{Key: "ConversionSoftware", Value: "dcm2niix"},
			{Key: "Manufacturer", Value: "Philips"},
		},
		FileDerived: Values{
			{Key: "TotalReadoutTime", Value: 0.05},
			{Key: "EffectiveEchoSpacing", Value: 0.0005},
			{Key: "SourceDataFormat", Value: "PAR REC"},
		},
		Common: Values{
			{Key: "StudyAcronym", Value: "ABC"},
			{Key: "InstitutionName", Value: ""},
		},
		Modality: Values{{Key: "ScannerRoom", Value: "B2"}, {Key: "StudyAcronym", Value: "ABC"}},
		Fixed:    Values{{Key: "BIDSVersion", Value: "1.8.0"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Manufacturer", "RepetitionTime", "SourceDataFormat", "BIDSVersion", "StudyAcronym", "ScannerRoom",
	}, rec.Fields().Keys())

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Manufacturer":"Philips","RepetitionTime":2,"SourceDataFormat":"PAR REC","BIDSVersion":"1.8.0","StudyAcronym":"ABC","ScannerRoom":"B2"}`,
		string(data))
}

func TestAssembleKeepsHeaderDerivedCustomFields(t *testing.T) {
	rec, err := Assemble(Inputs{
		Sidecar: Values{{Key: "ConversionSoftware", Value: "dcm2niix"}},
		FileDerived: Values{
			{Key: "WaterFatShift", Value: 10.5},
			{Key: "EchoTrainLength", Value: 35.0},
			{Key: "EffectiveEchoSpacing", Value: 0.0005},
		},
		Common: Values{{Key: "StudyAcronym", Value: "ABC"}},
	})
	require.NoError(t, err)

	keys := rec.Fields().Keys()
	assert.Contains(t, keys, "WaterFatShift")
	assert.Contains(t, keys, "EchoTrainLength")
	assert.NotContains(t, keys, "ConversionSoftware")
	assert.NotContains(t, keys, "EffectiveEchoSpacing")
	assert.Equal(t, "StudyAcronym", keys[len(keys)-1])
}

func TestAssembleRejectsBadFieldName(t *testing.T) {
	_, err := Assemble(Inputs{Common: Values{{Key: "echo_time", Value: 1}}})
	assert.ErrorIs(t, err, ErrMetadata)

	_, err = Assemble(Inputs{Modality: Values{{Key: "taskname", Value: "rest"}}})
	assert.ErrorIs(t, err, ErrMetadata)

	_, err = Assemble(Inputs{Sidecar: Values{{Key: "weird_key", Value: 1}}})
	assert.NoError(t, err)
}

func TestAssembleDropsEmptyCollections(t *testing.T) {
	rec, err := Assemble(Inputs{
		Common: Values{{Key: "IntendedFor", Value: []any{}}, {Key: "SliceTiming", Value: []any{0.0, 0.5}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"SliceTiming"}, rec.Fields().Keys())
}

func TestDecodeSidecarKeepsOrder(t *testing.T) {
	vals, err := DecodeSidecar([]byte(`{"Zeta": 1, "Alpha": "x", "PixelBandwidth": 2300.5}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Zeta", "Alpha", "PixelBandwidth"}, vals.Keys())

	bw, ok := vals.Float("PixelBandwidth")
	require.True(t, ok)
	assert.InDelta(t, 2300.5, bw, 1e-9)

	_, ok = vals.Float("Alpha")
	assert.False(t, ok)

	_, err = DecodeSidecar([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestCalcReadoutTimeSiemens(t *testing.T) {
	r, ok := CalcReadoutTime(ReadoutInputs{
		BandwidthPerPixelPhaseEncode: f64(20),
		ReconMatrixPE:                f64(100),
	})
	require.True(t, ok)
	assert.InDelta(t, 0.0005, r.EffectiveEchoSpacing, 1e-12)
	assert.InDelta(t, 0.0495, r.TotalReadoutTime, 1e-12)
}

func TestCalcReadoutTimePreferSiemensOverPhilips(t *testing.T) {
	r, ok := CalcReadoutTime(ReadoutInputs{
		BandwidthPerPixelPhaseEncode: f64(20),
		ReconMatrixPE:                f64(100),
		WaterFatShift:                f64(10),
		EchoTrainLength:              f64(35),
		PixelBandwidth:               f64(2000),
	})
	require.True(t, ok)
	assert.InDelta(t, 0.0005, r.EffectiveEchoSpacing, 1e-12)
}

func TestCalcReadoutTimePhilips(t *testing.T) {
	r, ok := CalcReadoutTime(ReadoutInputs{
		WaterFatShift:   f64(10),
		EchoTrainLength: f64(35),
		ReductionFactor: f64(2),
	})
	require.True(t, ok)
	want := (1000 * 10.0) / (434.215 * 36) / 2
	assert.InDelta(t, want, r.EffectiveEchoSpacing, 1e-12)
	assert.InDelta(t, 0.001*want*35, r.TotalReadoutTime, 1e-12)

	noSense, ok := CalcReadoutTime(ReadoutInputs{WaterFatShift: f64(10), EchoTrainLength: f64(35)})
	require.True(t, ok)
	assert.InDelta(t, want*2, noSense.EffectiveEchoSpacing, 1e-12)
}

func TestCalcReadoutTimePixelBandwidth(t *testing.T) {
	r, ok := CalcReadoutTime(ReadoutInputs{PixelBandwidth: f64(2000), EchoTrainLength: f64(40)})
	require.True(t, ok)
	want := (1 / (2000.0 * 40)) * 39 * 1.3
	assert.InDelta(t, want, r.EffectiveEchoSpacing, 1e-12)
	assert.InDelta(t, want*39, r.TotalReadoutTime, 1e-12)

	r, ok = CalcReadoutTime(ReadoutInputs{PixelBandwidth: f64(2000), ReconMatrixPE: f64(64)})
	require.True(t, ok)
	want = (1 / (2000.0 * 64)) * 63 * 1.3
	assert.InDelta(t, want, r.EffectiveEchoSpacing, 1e-12)
	assert.InDelta(t, want*63, r.TotalReadoutTime, 1e-12)
}

func TestCalcReadoutTimeInsufficient(t *testing.T) {
	_, ok := CalcReadoutTime(ReadoutInputs{})
	assert.False(t, ok)

	_, ok = CalcReadoutTime(ReadoutInputs{ReconMatrixPE: f64(64)})
	assert.False(t, ok)
}

func TestReadoutNeverReachesSidecar(t *testing.T) {
	r, ok := CalcReadoutTime(ReadoutInputs{BandwidthPerPixelPhaseEncode: f64(20), ReconMatrixPE: f64(100)})
	require.True(t, ok)
	assert.False(t, math.IsNaN(r.TotalReadoutTime))

	var derived Values
	r.Apply(&derived)
	rec, err := Assemble(Inputs{FileDerived: derived})
	require.NoError(t, err)
	assert.Empty(t, rec.Fields())
}
