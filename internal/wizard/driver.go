package wizard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"thumbnailer/internal/domain"
)

// ErrRunFailed is the only failure a wizard run reports to the user.
var ErrRunFailed = errors.New("generation failed, please try again")

// Step names in run order.
const (
	StepAnalyzing  = "analyzing"
	StepRefining   = "refining"
	StepGenerating = "generating"
	StepFinalizing = "finalizing"
)

// Step is one progress report.
type Step struct {
	Name          string
	Progress      int
	RefinedPrompt string
}

// Input is everything the user picked in the wizard. ImagePath is optional.
type Input struct {
	ImagePath      string
	Prompt         string
	Customizations domain.Customizations
}

// Result is a finished run.
type Result struct {
	Request *domain.GenerationRequest
	Image   []byte
}

// StageError keeps the cause of a failed run for logging while its message
// stays generic.
type StageError struct {
	Step string
	Err  error
}

func (e *StageError) Error() string { return ErrRunFailed.Error() }

func (e *StageError) Unwrap() []error { return []error{ErrRunFailed, e.Err} }

// Driver sequences one wizard run. There is no resume: a failed run must be
// started again from scratch.
type Driver struct {
	api      *Client
	readFile func(string) ([]byte, error)
}

func NewDriver(api *Client) *Driver {
	return &Driver{api: api, readFile: os.ReadFile}
}

// Run executes upload, create, refine, generate and download in order.
func (d *Driver) Run(ctx context.Context, in Input, progress func(Step)) (*Result, error) {
	if progress == nil {
		progress = func(Step) {}
	}

	progress(Step{Name: StepAnalyzing, Progress: 25})
	create := CreateRequest{OriginalPrompt: in.Prompt, Customizations: in.Customizations}
	if path := strings.TrimSpace(in.ImagePath); path != "" {
		data, err := d.readFile(path)
		if err != nil {
			return nil, &StageError{Step: StepAnalyzing, Err: fmt.Errorf("read image: %w", err)}
		}
		up, err := d.api.Upload(ctx, path, data)
		if err != nil {
			return nil, &StageError{Step: StepAnalyzing, Err: err}
		}
		create.UploadedImagePath = &up.FilePath
	}
	req, err := d.api.Create(ctx, create)
	if err != nil {
		return nil, &StageError{Step: StepAnalyzing, Err: err}
	}

	progress(Step{Name: StepRefining, Progress: 50})
	req, err = d.api.Refine(ctx, req.ID)
	if err != nil {
		return nil, &StageError{Step: StepRefining, Err: err}
	}
	refined := ""
	if req.RefinedPrompt != nil {
		refined = *req.RefinedPrompt
	}

	progress(Step{Name: StepGenerating, Progress: 75, RefinedPrompt: refined})
	req, err = d.api.Generate(ctx, req.ID)
	if err != nil {
		return nil, &StageError{Step: StepGenerating, Err: err}
	}
	if req.Status != domain.StatusCompleted || req.GeneratedImagePath == nil {
		return nil, &StageError{Step: StepGenerating, Err: fmt.Errorf("request %s ended as %s", req.ID, req.Status)}
	}

	progress(Step{Name: StepFinalizing, Progress: 100, RefinedPrompt: refined})
	img, err := d.api.Download(ctx, *req.GeneratedImagePath)
	if err != nil {
		return nil, &StageError{Step: StepFinalizing, Err: err}
	}
	return &Result{Request: req, Image: img}, nil
}
