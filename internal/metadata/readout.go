package metadata

// ReadoutInputs are the optional scanner parameters the readout formulas
// draw on. Nil means unknown.
type ReadoutInputs struct {
	// BandwidthPerPixelPhaseEncode is Siemens' BWPPPE in Hz.
	BandwidthPerPixelPhaseEncode *float64
	ReconMatrixPE                *float64
	// WaterFatShift is the Philips water-fat shift in pixels.
	WaterFatShift   *float64
	EchoTrainLength *float64
	ReductionFactor *float64
	PixelBandwidth  *float64
}

// Readout holds the derived timings in seconds.
type Readout struct {
	EffectiveEchoSpacing float64
	TotalReadoutTime     float64
}

// pixelBandwidthCorrection compensates the roughly 30% underestimate of the
// pixel-bandwidth formulas against the Siemens and PAR/REC ones. It is an
// empirical fit.
const pixelBandwidthCorrection = 1.3

// waterFatShiftHz is the fat-water frequency difference at 3T used by the
// PAR/REC formula.
const waterFatShiftHz = 434.215

// CalcReadoutTime tries the four readout formulas in fixed order and returns
// the first one whose inputs are all present.
func CalcReadoutTime(in ReadoutInputs) (Readout, bool) {
	if in.BandwidthPerPixelPhaseEncode != nil && in.ReconMatrixPE != nil &&
		*in.BandwidthPerPixelPhaseEncode != 0 && *in.ReconMatrixPE != 0 {
		ees := 1 / (*in.BandwidthPerPixelPhaseEncode * *in.ReconMatrixPE)
		return Readout{EffectiveEchoSpacing: ees, TotalReadoutTime: ees * (*in.ReconMatrixPE - 1)}, true
	}

	if in.WaterFatShift != nil && in.EchoTrainLength != nil {
		reduction := 1.0
		if in.ReductionFactor != nil && *in.ReductionFactor != 0 {
			reduction = *in.ReductionFactor
		}
		etl := *in.EchoTrainLength
		ees := (1000 * *in.WaterFatShift) / (waterFatShiftHz * (etl + 1)) / reduction
		return Readout{EffectiveEchoSpacing: ees, TotalReadoutTime: 0.001 * ees * etl}, true
	}

	if in.PixelBandwidth != nil && in.EchoTrainLength != nil &&
		*in.PixelBandwidth != 0 && *in.EchoTrainLength != 0 {
		etl := *in.EchoTrainLength
		ees := (1 / (*in.PixelBandwidth * etl)) * (etl - 1) * pixelBandwidthCorrection
		return Readout{EffectiveEchoSpacing: ees, TotalReadoutTime: ees * (etl - 1)}, true
	}

	if in.PixelBandwidth != nil && in.ReconMatrixPE != nil &&
		*in.PixelBandwidth != 0 && *in.ReconMatrixPE != 0 {
		pe := *in.ReconMatrixPE
		ees := (1 / (*in.PixelBandwidth * pe)) * (pe - 1) * pixelBandwidthCorrection
		return Readout{EffectiveEchoSpacing: ees, TotalReadoutTime: ees * (pe - 1)}, true
	}

	return Readout{}, false
}

// Apply stores r under its BIDS field names. Both fields are excluded from
// the written sidecar.
func (r Readout) Apply(v *Values) {
	v.Set("EffectiveEchoSpacing", r.EffectiveEchoSpacing)
	v.Set("TotalReadoutTime", r.TotalReadoutTime)
}
