package scan

// Status classifies a source texture found on disk.
type Status string

const (
	StatusReady    Status = "ready"
	StatusMissing  Status = "missing"
	StatusNotImage Status = "not_image"
	// StatusConflict marks sources whose converted output path would be
	// shared with another source, e.g. wood.png and wood.jpg.
	StatusConflict Status = "output_conflict"
)

// SkipReason explains why an image reference never becomes a conversion job.
type SkipReason string

const (
	SkipEmbedded         SkipReason = "embedded"
	SkipExternal         SkipReason = "external"
	SkipAlreadyConverted SkipReason = "already_converted"
	SkipUnsupported      SkipReason = "unsupported"
	SkipOutsideRoot      SkipReason = "outside_root"
	SkipInvalidURI       SkipReason = "invalid_uri"
)

// Reference is one image entry of a manifest that points at a texture file.
// Name is carried through for reporting only.
type Reference struct {
	Manifest   string
	ImageIndex int
	URI        string
	Name       string
	MimeType   string
}

// Source is a distinct texture file and every reference that consumes it.
type Source struct {
	Path      string
	Consumers []Reference
	Status    Status
	Detail    string
	Size      int64
}

// Ready reports whether the source can be dispatched for conversion.
func (s Source) Ready() bool {
	return s.Status == StatusReady
}

// Skipped is a reference the scanner recognised but will not convert.
type Skipped struct {
	Reference
	Reason SkipReason
}

// Manifest is a scanned manifest file. Err is set when it could not be read
// or parsed; such manifests contribute no references.
type Manifest struct {
	Path   string
	Images int
	Err    error
}

// Inventory is the scanner's output.
type Inventory struct {
	Root      string
	Manifests []Manifest
	Sources   []Source
	Skipped   []Skipped
}

// Empty reports whether no manifests were found.
func (inv *Inventory) Empty() bool {
	return inv == nil || len(inv.Manifests) == 0
}

// ReadySources returns the sources that should become conversion jobs.
func (inv *Inventory) ReadySources() []Source {
	if inv == nil {
		return nil
	}
	out := make([]Source, 0, len(inv.Sources))
	for _, src := range inv.Sources {
		if src.Ready() {
			out = append(out, src)
		}
	}
	return out
}

// References counts every consuming reference across all sources.
func (inv *Inventory) References() int {
	if inv == nil {
		return 0
	}
	total := 0
	for _, src := range inv.Sources {
		total += len(src.Consumers)
	}
	return total
}

// CountSkipped returns the number of skipped references with reason.
func (inv *Inventory) CountSkipped(reason SkipReason) int {
	if inv == nil {
		return 0
	}
	count := 0
	for _, skip := range inv.Skipped {
		if skip.Reason == reason {
			count++
		}
	}
	return count
}
