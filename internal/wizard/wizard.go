// Package wizard implements the three-step data import flow:
// select a file, preview its parsed contents, confirm and submit.
//
// The wizard owns all flow state. Collaborators (the data-sync API, the
// hash routine) are injected, which keeps every transition unit-testable
// without a network.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/imvu-insight/datasync/internal/classify"
	"github.com/imvu-insight/datasync/internal/digest"
	"github.com/imvu-insight/datasync/internal/tabular"
)

// Step identifies the wizard's current position in the flow.
type Step int

const (
	StepSelect Step = iota
	StepPreview
	StepConfirm
)

// DefaultMaxFileSize caps accepted uploads at 5 MiB, matching the server's
// snapshot size limit.
const DefaultMaxFileSize = 5 << 20

// Sentinel errors surfaced by wizard transitions. All of them are
// recoverable: the operator re-selects a file or repeats the action.
var (
	ErrInvalidFileType      = errors.New("invalid file type: only .csv and .xml are accepted")
	ErrFileTooLarge         = errors.New("file too large: maximum size is 5 MiB")
	ErrNoFile               = errors.New("no file selected")
	ErrHashUnavailable      = errors.New("failed to compute file hash")
	ErrNotReady             = errors.New("previous step incomplete")
	ErrDuplicateDetected    = errors.New("identical file already uploaded")
	ErrDuplicateCheckFailed = errors.New("duplicate check failed")
	ErrSubmissionFailed     = errors.New("import submission failed")
)

// FileInfo identifies the selected file.
type FileInfo struct {
	Name     string
	Size     int64
	Modified time.Time
}

// Options are the operator-chosen import flags confirmed in the last step.
type Options struct {
	Overwrite bool
	DryRun    bool
}

// DuplicateRecord is the metadata of an already-committed upload with the
// same content hash, shown to the operator instead of re-importing.
type DuplicateRecord struct {
	ID          int64
	Type        classify.DataType
	Filename    string
	Hash        string
	RecordCount int
	FileSize    int64
	UploadedAt  time.Time
}

// DuplicateError carries the existing record that blocked a submission.
type DuplicateError struct {
	Record DuplicateRecord
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("identical file already uploaded as %q (%s, %d records)",
		e.Record.Filename, e.Record.Type.Label(), e.Record.RecordCount)
}

// Is lets callers match a DuplicateError with errors.Is(err, ErrDuplicateDetected).
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateDetected
}

// SubmitResult is returned by a successful import submission.
type SubmitResult struct {
	ID            int64
	Filename      string
	ImportedCount int
	Type          classify.DataType
	DryRun        bool
}

// API is the remote surface the wizard drives. RecordByHash returns nil
// when no record with the given hash exists.
type API interface {
	RecordByHash(ctx context.Context, hash string) (*DuplicateRecord, error)
	ImportFile(ctx context.Context, typ classify.DataType, fileName string, content []byte, opts Options) (*SubmitResult, error)
}

// HashFunc starts an asynchronous digest computation. Injected so tests can
// control completion ordering.
type HashFunc func(ctx context.Context, data []byte) <-chan digest.Result

// Wizard drives the select/preview/confirm import flow.
//
// The hash of the selected file is computed in the background; a selection
// generation counter guards against a slow computation for an abandoned
// file being committed onto a newer selection.
type Wizard struct {
	api         API
	hashFn      HashFunc
	maxFileSize int64
	onComplete  func(SubmitResult)

	mu       sync.Mutex
	step     Step
	file     *FileInfo
	data     []byte
	gen      uint64
	hash     string
	hashDone chan struct{}
	parse    *tabular.Result
	detected classify.DataType
	hasType  bool
	opts     Options
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithMaxFileSize overrides the accepted file size limit.
func WithMaxFileSize(n int64) Option {
	return func(w *Wizard) { w.maxFileSize = n }
}

// WithHashFunc overrides the asynchronous hash routine.
func WithHashFunc(fn HashFunc) Option {
	return func(w *Wizard) { w.hashFn = fn }
}

// WithOnComplete registers a callback fired after a successful submission,
// once the wizard has already reset to the select step. Callers typically
// use it to refresh an upload history view.
func WithOnComplete(fn func(SubmitResult)) Option {
	return func(w *Wizard) { w.onComplete = fn }
}

// New returns a Wizard in the select step.
func New(a API, opts ...Option) *Wizard {
	w := &Wizard{
		api:         a,
		hashFn:      digest.Compute,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Step returns the wizard's current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// File returns the currently selected file, or nil.
func (w *Wizard) File() *FileInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file
}

// Hash returns the committed content hash, or "" while unknown.
func (w *Wizard) Hash() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hash
}

// ParseResult returns the preview parse result, or nil before preview.
func (w *Wizard) ParseResult() *tabular.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.parse
}

// Detected returns the classified data type and whether one is resolved.
func (w *Wizard) Detected() (classify.DataType, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.detected, w.hasType
}

// SetType overrides the classified data type with an operator choice.
func (w *Wizard) SetType(typ classify.DataType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.detected = typ
	w.hasType = true
}

// SetOptions records the operator's import flags.
func (w *Wizard) SetOptions(opts Options) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opts = opts
}

// SelectFile validates and stores a new selection, then starts hashing in
// the background. Validation failures leave all wizard state untouched.
// Any previous selection's artifacts (hash, parse result, detected type)
// are invalidated.
func (w *Wizard) SelectFile(ctx context.Context, info FileInfo, data []byte) error {
	if _, err := tabular.FormatForFile(info.Name); err != nil {
		return ErrInvalidFileType
	}
	if info.Size > w.maxFileSize || int64(len(data)) > w.maxFileSize {
		return ErrFileTooLarge
	}

	w.mu.Lock()
	w.gen++
	gen := w.gen
	w.file = &info
	w.data = data
	w.hash = ""
	w.parse = nil
	w.hasType = false
	// Immediate hint from the filename alone; replaced after parsing.
	w.detected = classify.Detect(nil, nil, info.Name)
	w.hasType = true
	done := make(chan struct{})
	w.hashDone = done
	ch := w.hashFn(ctx, data)
	w.mu.Unlock()

	go func() {
		res := <-ch
		w.mu.Lock()
		// Identity check: commit only if this is still the live selection.
		if w.gen == gen && res.Err == nil {
			w.hash = res.Hex
		}
		w.mu.Unlock()
		close(done)
	}()

	return nil
}

// Next advances the wizard one step. From the select step it finishes the
// hash, parses the file and classifies it; a parse failure returns the
// error and stays on select. From preview it only checks that a parse
// result exists.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	step := w.step
	w.mu.Unlock()

	switch step {
	case StepSelect:
		return w.advanceToPreview(ctx)
	case StepPreview:
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.parse == nil {
			return ErrNotReady
		}
		w.step = StepConfirm
		return nil
	default:
		return ErrNotReady
	}
}

func (w *Wizard) advanceToPreview(ctx context.Context) error {
	w.mu.Lock()
	file := w.file
	data := w.data
	w.mu.Unlock()

	if file == nil {
		return ErrNoFile
	}

	if err := w.ensureHash(ctx); err != nil {
		return err
	}

	result, err := tabular.ParseFile(file.Name, string(data))
	if err != nil {
		// Parser errors are recoverable: surface and stay on select.
		return err
	}

	detected := classify.Detect(result.Rows, &result.Summary, file.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != file {
		// Selection changed while parsing; drop this result.
		return ErrNotReady
	}
	w.parse = result
	w.detected = detected
	w.hasType = true
	w.step = StepPreview
	return nil
}

// Back moves one step backwards. Returning to the select step clears the
// selection and every derived artifact.
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.step {
	case StepConfirm:
		w.step = StepPreview
	case StepPreview:
		w.resetLocked()
	}
}

// Restart abandons the flow from any step and clears all state.
func (w *Wizard) Restart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
}

func (w *Wizard) resetLocked() {
	w.gen++ // invalidate any in-flight hash
	w.step = StepSelect
	w.file = nil
	w.data = nil
	w.hash = ""
	w.hashDone = nil
	w.parse = nil
	w.hasType = false
	w.opts = Options{}
}

// ensureHash waits for the background digest of the current selection,
// computing one synchronously if none is in flight.
func (w *Wizard) ensureHash(ctx context.Context) error {
	w.mu.Lock()
	if w.hash != "" {
		w.mu.Unlock()
		return nil
	}
	done := w.hashDone
	gen := w.gen
	data := w.data
	w.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrHashUnavailable, ctx.Err())
		}
		w.mu.Lock()
		hash := w.hash
		stale := w.gen != gen
		w.mu.Unlock()
		if stale {
			return ErrNotReady
		}
		if hash != "" {
			return nil
		}
		// Background computation failed; fall through to a direct retry.
	}

	res := <-w.hashFn(ctx, data)
	if res.Err != nil {
		return fmt.Errorf("%w: %v", ErrHashUnavailable, res.Err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return ErrNotReady
	}
	w.hash = res.Hex
	return nil
}

// Submit runs the confirm-step action: re-verify the hash, check the
// server for a duplicate upload, and if none exists submit the file to the
// import endpoint matching the classified type.
//
// A found duplicate returns *DuplicateError (matching ErrDuplicateDetected)
// and never calls the import endpoint, unless the overwrite option is
// set. A failed duplicate check always blocks submission rather than
// letting it through. On success the wizard resets
// to the select step and the completion callback fires.
func (w *Wizard) Submit(ctx context.Context) (*SubmitResult, error) {
	w.mu.Lock()
	if w.step != StepConfirm || w.parse == nil || !w.hasType {
		w.mu.Unlock()
		return nil, ErrNotReady
	}
	file := w.file
	w.mu.Unlock()

	if file == nil {
		return nil, ErrNoFile
	}
	if err := w.ensureHash(ctx); err != nil {
		return nil, err
	}

	w.mu.Lock()
	hash := w.hash
	data := w.data
	typ := w.detected
	opts := w.opts
	w.mu.Unlock()

	existing, err := w.api.RecordByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateCheckFailed, err)
	}
	if existing != nil && !opts.Overwrite {
		// The overwrite flag is the operator's explicit acknowledgment
		// that the existing upload should be replaced.
		return nil, &DuplicateError{Record: *existing}
	}

	result, err := w.api.ImportFile(ctx, typ, file.Name, data, opts)
	if err != nil {
		// Stay on confirm; the operator may retry.
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	result.Type = typ
	result.DryRun = opts.DryRun

	w.mu.Lock()
	w.resetLocked()
	cb := w.onComplete
	w.mu.Unlock()

	if cb != nil {
		cb(*result)
	}
	return result, nil
}
