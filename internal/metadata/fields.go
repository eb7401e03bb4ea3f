// Package metadata assembles the JSON sidecar written next to every BIDS
// image.
package metadata

// CanonicalFields is the output order of sidecar fields. Custom study fields
// follow in the order they were first seen.
var CanonicalFields = []string{
	"Manufacturer",
	"ManufacturersModelName",
	"DeviceSerialNumber",
	"StationName",
	"SoftwareVersions",
	"HardcopyDeviceSoftwareVersion",
	"MagneticFieldStrength",
	"ReceiveCoilName",
	"ReceiveCoilActiveElements",
	"GradientSetType",
	"MRTransmitCoilSequence",
	"MatrixCoilMode",
	"CoilCombinationMethod",
	"PulseSequenceType",
	"ScanningSequence",
	"SequenceVariant",
	"ScanOptions",
	"SequenceName",
	"PulseSequenceDetails",
	"NonlinearGradientCorrection",
	"NumberShots",
	"ParallelReductionFactorInPlane",
	"ParallelAcquisitionTechnique",
	"PartialFourier",
	"PartialFourierDirection",
	"PhaseEncodingDirection",
	"EffectiveEchoSpacing",
	"TotalReadoutTime",
	"EchoTime",
	"InversionTime",
	"SliceTiming",
	"SliceEncodingDirection",
	"DwellTime",
	"FlipAngle",
	"NegativeContrast",
	"MultibandAccelerationFactor",
	"AnatomicalLandmarkCoordinates",
	"InstitutionName",
	"InstitutionAddress",
	"InstitutionalDepartmentName",
	"ContrastBolusIngredient",
	"RepetitionTime",
	"VolumeTiming",
	"TaskName",
	"NumberOfVolumesDiscardedByScanner",
	"NumberOfVolumesDiscardedByUser",
	"DelayTime",
	"AcquisitionDuration",
	"DelayAfterTrigger",
	"Instructions",
	"TaskDescription",
	"CogAtlasID",
	"CogPOID",
	"Units",
	"IntendedFor",
	"SourceDataFormat",
	"BIDSVersion",
	"BidsifyVersion",
}

// ExcludedFields are never written. Their derivation does not pass
// downstream validation.
var ExcludedFields = map[string]bool{
	"EffectiveEchoSpacing": true,
	"TotalReadoutTime":     true,
}

var canonicalIndex = func() map[string]int {
	m := make(map[string]int, len(CanonicalFields))
	for i, f := range CanonicalFields {
		m[f] = i
	}
	return m
}()

// IsCanonical reports whether name is part of the canonical field set.
func IsCanonical(name string) bool {
	_, ok := canonicalIndex[name]
	return ok
}
