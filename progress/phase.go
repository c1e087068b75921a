// Package progress models the ordered, terminated event stream that reports
// ingestion phases and completion percentage to the caller.
package progress

// Phase is a step of an ingestion run.
type Phase string

const (
	PhaseIdle            Phase = ""
	PhaseExtracting      Phase = "extracting"
	PhaseExtracted       Phase = "extracted"
	PhaseUploadingImages Phase = "uploading-images"
	PhaseImagesUploaded  Phase = "images-uploaded"
	PhaseUpdatingProduct Phase = "updating-product"
	PhaseComplete        Phase = "complete"
	PhaseError           Phase = "error"
)

// Percentage allocation: extraction owns 0-30, uploads scale across 30-95,
// the finalize phases take the rest.
const (
	percentExtracting      = 10
	percentExtracted       = 30
	percentUploadSpan      = 65
	percentImagesUploaded  = 95
	percentUpdatingProduct = 97
	percentComplete        = 100
)

var transitions = map[Phase][]Phase{
	PhaseIdle:            {PhaseExtracting, PhaseError},
	PhaseExtracting:      {PhaseExtracted, PhaseError},
	PhaseExtracted:       {PhaseUploadingImages, PhaseImagesUploaded, PhaseError},
	PhaseUploadingImages: {PhaseUploadingImages, PhaseImagesUploaded, PhaseError},
	PhaseImagesUploaded:  {PhaseUpdatingProduct, PhaseError},
	PhaseUpdatingProduct: {PhaseComplete, PhaseError},
}

// CanTransition reports whether next may follow current.
func CanTransition(current, next Phase) bool {
	for _, p := range transitions[current] {
		if p == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no phase may follow p.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// UploadPercentage maps upload progress onto the upload span.
func UploadPercentage(uploaded, total int) int {
	if total <= 0 {
		return percentImagesUploaded
	}
	if uploaded > total {
		uploaded = total
	}
	return percentExtracted + percentUploadSpan*uploaded/total
}

func basePercentage(p Phase) int {
	switch p {
	case PhaseExtracting:
		return percentExtracting
	case PhaseExtracted, PhaseUploadingImages:
		return percentExtracted
	case PhaseImagesUploaded:
		return percentImagesUploaded
	case PhaseUpdatingProduct:
		return percentUpdatingProduct
	case PhaseComplete:
		return percentComplete
	}
	return 0
}
