// Package pipeline converts discovered source files into named BIDS
// images with assembled sidecars.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/bidsify/bidsify/internal/bids"
	"github.com/bidsify/bidsify/internal/converter"
	"github.com/bidsify/bidsify/internal/discovery"
	"github.com/bidsify/bidsify/internal/filesystem"
	"github.com/bidsify/bidsify/internal/header"
	"github.com/bidsify/bidsify/internal/heuristic"
	"github.com/bidsify/bidsify/internal/metadata"
)

// ToolName is written to sidecars and dataset_description.json.
const ToolName = "bidsify"

// Converter turns a DICOM series directory or PAR file into NIfTI images.
type Converter interface {
	Convert(ctx context.Context, src, basename, outDir string) (*converter.Output, error)
}

// NameRecorder stores the BIDS name given to a registered file.
type NameRecorder interface {
	UpdateBIDSName(ctx context.Context, fileID, modalityType, name string) error
}

// Options control a conversion run.
type Options struct {
	StudyDir         string
	OutDir           string
	ZeroPad          int
	Gzip             bool
	CompressionLevel int
	AppendDWIInfo    bool
	KeepUnknown      bool
	BIDSVersion      string
	ToolVersion      string
	DryRun           bool
}

// Outcome is the result of processing one source record. A skipped or
// failed record has no images and a Reason.
type Outcome struct {
	FileID        string
	SubjectID     string
	SessionID     string
	ModalityType  string
	ModalityLabel string
	Task          string
	Images        []string
	Sidecars      []string
	Bvals         []string
	Bvecs         []string
	Reason        string
}

// Empty reports whether nothing was written.
func (o Outcome) Empty() bool {
	return len(o.Images) == 0
}

// Plan is the classification of a source record before conversion.
type Plan struct {
	Result     heuristic.Result
	Components map[string]string
	Format     header.Format
	Search     string
}

// Processor converts one source record at a time.
type Processor struct {
	cfg        *heuristic.Config
	classifier *heuristic.Classifier
	conv       Converter
	names      NameRecorder
	opts       Options
	logger     *zap.Logger
}

// NewProcessor wires a processor. names may be nil when nothing is
// registered.
func NewProcessor(cfg *heuristic.Config, conv Converter, names NameRecorder, opts Options, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ZeroPad < 1 {
		opts.ZeroPad = 2
	}
	if opts.StudyDir != "" {
		if abs, err := filepath.Abs(opts.StudyDir); err == nil {
			opts.StudyDir = abs
		}
	}
	return &Processor{
		cfg:        cfg,
		classifier: heuristic.NewClassifier(cfg, logger),
		conv:       conv,
		names:      names,
		opts:       opts,
		logger:     logger,
	}
}

// openHeader parses the source header. A header that cannot be read leaves
// classification to the path.
func (p *Processor) openHeader(path string) header.Source {
	src, err := header.Open(path)
	if err != nil {
		p.logger.Warn("header not readable", zap.String("path", path), zap.Error(err))
		return nil
	}
	return src
}

// Plan classifies rec without converting it.
func (p *Processor) Plan(rec discovery.SourceRecord) Plan {
	return p.plan(rec, p.openHeader(rec.Path))
}

func (p *Processor) plan(rec discovery.SourceRecord, hdr header.Source) Plan {
	var hs heuristic.HeaderSource
	format := header.DetectFormat(rec.Path)
	if hdr != nil {
		hs = hdr
		format = hdr.Format()
	}
	search := heuristic.StripRoot(rec.Path, p.opts.StudyDir)
	result := p.classifier.Identify(rec.Path, p.opts.StudyDir, hs)
	return Plan{
		Result:     result,
		Components: p.classifier.Components(result, search),
		Format:     format,
		Search:     search,
	}
}

// Process converts rec. Per-file problems are logged and reported through
// Outcome.Reason; the returned error is reserved for failures that affect
// every file, such as a missing converter or invalid study metadata.
func (p *Processor) Process(ctx context.Context, rec discovery.SourceRecord) (Outcome, error) {
	out := Outcome{FileID: rec.FileID, SubjectID: rec.SubjectID, SessionID: rec.SessionID}
	log := p.logger.With(
		zap.String("sub", rec.SubjectID),
		zap.String("ses", rec.SessionID),
		zap.String("path", rec.Path))

	hdr := p.openHeader(rec.Path)
	plan := p.plan(rec, hdr)
	result := plan.Result
	out.ModalityType, out.ModalityLabel, out.Task = result.ModalityType, result.ModalityLabel, result.Task

	if !result.Matched() && !p.opts.KeepUnknown {
		log.Info("no modality match, skipping")
		return skip(out, "unclassified"), nil
	}
	if d, ok := hdr.(*header.DICOM); ok && !d.Valid() {
		log.Info("secondary capture, skipping")
		return skip(out, "secondary capture"), nil
	}
	if p.opts.DryRun {
		return skip(out, "dry run"), nil
	}

	subDir := filepath.Join(p.opts.OutDir, "sub-"+rec.SubjectID)
	work, cleanup, err := filesystem.TempDir(subDir, "tmp_dir")
	if err != nil {
		return out, fmt.Errorf("create work dir: %w", err)
	}
	defer cleanup()

	images, err := p.convert(ctx, rec, plan.Format, work)
	if err != nil {
		if errors.Is(err, converter.ErrDependency) {
			return out, err
		}
		log.Warn("conversion failed", zap.Error(err))
		return skip(out, err.Error()), nil
	}

	if !result.Matched() {
		result = reclassify(images)
		out.ModalityType, out.ModalityLabel = result.ModalityType, result.ModalityLabel
	}

	named, err := p.place(rec, hdr, plan, result, images)
	if err != nil {
		if errors.Is(err, metadata.ErrMetadata) {
			return out, err
		}
		log.Warn("naming failed", zap.Error(err))
		return skip(out, err.Error()), nil
	}
	out.ModalityType = named.modalityType
	out.ModalityLabel = named.label
	out.Images, out.Sidecars, out.Bvals, out.Bvecs = named.images, named.sidecars, named.bvals, named.bvecs

	if p.names != nil && rec.FileID != "" && len(named.names) > 0 {
		if err := p.names.UpdateBIDSName(ctx, rec.FileID, named.modalityType, named.names[0]); err != nil {
			log.Warn("registry update failed", zap.Error(err))
		}
	}

	log.Info("converted",
		zap.String("type", named.modalityType),
		zap.Strings("names", named.names))
	return out, nil
}

func skip(out Outcome, reason string) Outcome {
	out.Reason = reason
	return out
}

// convert produces the NIfTI images of rec inside work. NIfTI sources are
// used in place with their siblings.
func (p *Processor) convert(ctx context.Context, rec discovery.SourceRecord, format header.Format, work string) ([]converter.Image, error) {
	switch format {
	case header.FormatNIfTI:
		return []converter.Image{converter.ImageFor(rec.Path)}, nil
	case header.FormatDICOM, header.FormatPAR:
		if p.conv == nil {
			return nil, fmt.Errorf("%w: no converter configured", converter.ErrDependency)
		}
		src := rec.Path
		if rec.IsDICOMSeries() {
			src = filepath.Dir(rec.Path)
		}
		res, err := p.conv.Convert(ctx, src, convertBasename(rec), work)
		if err != nil {
			return nil, err
		}
		return res.Images, nil
	default:
		return nil, fmt.Errorf("unsupported source format for %s", rec.Path)
	}
}

// convertBasename is the file name prefix handed to the converter.
func convertBasename(rec discovery.SourceRecord) string {
	if rec.FileID == "" {
		return "sub-" + rec.SubjectID
	}
	return "sub-" + rec.SubjectID + "_" + rec.FileID
}

// fieldmapHint strips the converter prefix from a converted image name so
// the subject ID never takes part in fieldmap case detection.
func fieldmapHint(rec discovery.SourceRecord, path string) string {
	name := filepath.Base(path)
	if rest, ok := strings.CutPrefix(name, convertBasename(rec)); ok {
		return rest
	}
	return name
}

// reclassify guesses the modality of unclassified converter output.
func reclassify(images []converter.Image) heuristic.Result {
	out := converter.Output{Images: images}
	switch {
	case out.Diffusion():
		return heuristic.Result{ModalityType: bids.TypeDWI, ModalityLabel: "dwi"}
	case len(images) >= 2:
		return heuristic.Result{ModalityType: bids.TypeFmap, ModalityLabel: "fmap"}
	default:
		return heuristic.Result{}
	}
}

type placed struct {
	modalityType string
	label        string
	names        []string
	images       []string
	sidecars     []string
	bvals        []string
	bvecs        []string
}

// imageInfo is one converted image with its assembled sidecar.
type imageInfo struct {
	img    converter.Image
	record metadata.Record
	frames int
}

// place assembles metadata, names every image and copies it into the
// output tree.
func (p *Processor) place(rec discovery.SourceRecord, hdr header.Source, plan Plan, result heuristic.Result, images []converter.Image) (placed, error) {
	modalityType := result.ModalityType
	if modalityType == "" {
		modalityType = bids.TypeUnknown
	}

	common, modality := p.cfg.Metadata.Select(modalityType, result.Task)
	var fixed metadata.Values
	fixed.Set("SourceDataFormat", plan.Format.String())
	fixed.Set("BIDSVersion", p.opts.BIDSVersion)
	fixed.Set("BidsifyVersion", p.opts.ToolVersion)

	infos := make([]imageInfo, 0, len(images))
	for _, img := range images {
		info, err := p.assemble(img, hdr, metadata.Inputs{Common: common, Modality: modality, Fixed: fixed})
		if err != nil {
			return placed{}, err
		}
		infos = append(infos, info)
	}

	var base bids.Components
	base.Label = result.ModalityLabel
	base.Task = result.Task
	for key, value := range plan.Components {
		base.Set(key, value)
	}
	base.Run = bids.PadRun(base.Run, p.opts.ZeroPad)

	if (modalityType == bids.TypeFunc || modalityType == bids.TypeDWI) && allSingleFrame(infos) {
		base.Label = "sbref"
	}

	out := placed{modalityType: modalityType, label: base.Label}
	if modalityType == bids.TypeFmap {
		return p.placeFieldmap(rec, base, infos, out)
	}

	run := base.Run
	for i, info := range infos {
		c := base
		if len(infos) > 1 && c.Echo == "" {
			c.Echo = strconv.Itoa(i + 1)
		}
		if modalityType == bids.TypeDWI && p.opts.AppendDWIInfo && info.img.Bval != "" {
			bvals, err := bids.ReadBvals(info.img.Bval)
			if err != nil {
				return placed{}, err
			}
			var te *float64
			if v, ok := info.record.Fields().Float("EchoTime"); ok {
				te = &v
			}
			c.Acq = bids.DWIAcqSuffix(c.Acq, bvals, te)
		}

		d, err := bids.NewDescriptor(rec.SubjectID, rec.SessionID, modalityType, c, bids.FieldmapCase{})
		if err != nil {
			return placed{}, err
		}
		dir := bids.OutputDir(p.opts.OutDir, d)

		// Echoes of one acquisition share a run; otherwise every image
		// takes the next free run.
		if run == "" || (i > 0 && d.Echo == "" && base.Run == "") {
			run, err = bids.ResolveRun(dir, d, p.opts.ZeroPad)
			if err != nil {
				return placed{}, err
			}
		}
		d.Run = run

		names, err := bids.Render(d)
		if err != nil {
			return placed{}, err
		}
		if err := p.write(dir, names[0], info, &out); err != nil {
			return placed{}, err
		}
	}
	return out, nil
}

func (p *Processor) placeFieldmap(rec discovery.SourceRecord, base bids.Components, infos []imageInfo, out placed) (placed, error) {
	paths := make([]string, 0, len(infos))
	for _, info := range infos {
		paths = append(paths, fieldmapHint(rec, info.img.NIfTI))
	}
	fm, err := bids.ResolveFieldmapCase(len(infos), paths)
	if err != nil {
		return placed{}, err
	}

	d, err := bids.NewDescriptor(rec.SubjectID, rec.SessionID, bids.TypeFmap, base, fm)
	if err != nil {
		return placed{}, err
	}
	dir := bids.OutputDir(p.opts.OutDir, d)
	if d.Run == "" {
		if d.Run, err = bids.ResolveRun(dir, d, p.opts.ZeroPad); err != nil {
			return placed{}, err
		}
	}
	names, err := bids.Render(d)
	if err != nil {
		return placed{}, err
	}
	if len(names) != len(infos) {
		return placed{}, fmt.Errorf("%w: %s expects %d images, got %d", bids.ErrName, fm, len(names), len(infos))
	}

	out.label = fm.String()
	for i, info := range infos {
		if err := p.write(dir, names[i], info, &out); err != nil {
			return placed{}, err
		}
	}
	return out, nil
}

// assemble reads the sidecar and header parameters of img and builds its
// metadata record.
func (p *Processor) assemble(img converter.Image, hdr header.Source, in metadata.Inputs) (imageInfo, error) {
	info := imageInfo{img: img, frames: 1}

	if img.JSON != "" {
		content, err := filesystem.ReadFile(img.JSON)
		if err != nil {
			return imageInfo{}, err
		}
		sidecar, err := metadata.DecodeSidecar([]byte(content))
		if err != nil {
			p.logger.Warn("ignoring unreadable sidecar", zap.String("path", img.JSON), zap.Error(err))
		} else {
			in.Sidecar = sidecar
		}
	}

	nii, err := header.ReadNIfTI(img.NIfTI)
	if err != nil {
		p.logger.Warn("image header not readable", zap.String("path", img.NIfTI), zap.Error(err))
	} else {
		info.frames = nii.Frames()
		in.FileDerived = nii.Params(in.Sidecar)
	}
	if hdr != nil {
		in.FileDerived.Merge(hdr.Params(in.Sidecar))
	}

	record, err := metadata.Assemble(in)
	if err != nil {
		return imageInfo{}, err
	}
	info.record = record
	return info, nil
}

func allSingleFrame(infos []imageInfo) bool {
	if len(infos) == 0 {
		return false
	}
	for _, info := range infos {
		if info.frames != 1 {
			return false
		}
	}
	return true
}

// write copies one image and its siblings to dir/name and writes the
// assembled sidecar.
func (p *Processor) write(dir, name string, info imageInfo, out *placed) error {
	base := filepath.Join(dir, name)

	img, err := filesystem.PlaceImage(info.img.NIfTI, base, p.opts.Gzip, p.opts.CompressionLevel)
	if err != nil {
		return err
	}
	sidecar := base + ".json"
	if err := filesystem.WriteJSON(sidecar, info.record); err != nil {
		return err
	}
	out.names = append(out.names, name)
	out.images = append(out.images, img)
	out.sidecars = append(out.sidecars, sidecar)

	if info.img.Bval != "" && info.img.Bvec != "" {
		bval, bvec := base+".bval", base+".bvec"
		if err := filesystem.CopyFile(info.img.Bval, bval); err != nil {
			return err
		}
		if err := filesystem.CopyFile(info.img.Bvec, bvec); err != nil {
			return err
		}
		out.bvals = append(out.bvals, bval)
		out.bvecs = append(out.bvecs, bvec)
	}
	return nil
}
