// Package creator runs the create-and-mint flow: validate a draft, generate
// an image from its description, store image and metadata, then mint a token
// that points at the metadata. State changes only through Reduce.
package creator

import (
	"strings"
)

// Phase is the stage a submission is in.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGenerating
	PhaseUploading
	PhaseMinting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGenerating:
		return "generating"
	case PhaseUploading:
		return "uploading"
	case PhaseMinting:
		return "minting"
	default:
		return "unknown"
	}
}

func (p Phase) label() string {
	switch p {
	case PhaseGenerating:
		return "Image generation"
	case PhaseUploading:
		return "Upload"
	case PhaseMinting:
		return "Mint"
	default:
		return "Submission"
	}
}

// progress is the spinner text for each busy phase.
func (p Phase) progress() string {
	switch p {
	case PhaseGenerating:
		return "Making image..."
	case PhaseUploading:
		return "Uploading image..."
	case PhaseMinting:
		return "Waiting to mint..."
	default:
		return ""
	}
}

// Outcome is how the last submission ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

// Draft is the user's form input.
type Draft struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate rejects drafts with an empty name or description.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Description) == "" {
		return &Error{Kind: KindValidation, Msg: "Enter name and description"}
	}
	return nil
}

type GeneratedImage struct {
	Data        []byte
	ContentType string
	DataURI     string
}

type StoredMetadata struct {
	CID string
	URL string
}

type MintRecord struct {
	TxHash  string
	TokenID string
	Block   uint64
}

// State is the whole creator state for the current (or last) submission.
type State struct {
	SubmissionID string
	Phase        Phase
	Busy         bool
	Message      string
	Draft        Draft
	Image        *GeneratedImage
	Metadata     *StoredMetadata
	PendingTx    string
	Minted       *MintRecord
	Outcome      Outcome
	Err          *Error
}

// Action is a tagged state transition.
type Action interface{ isAction() }

type (
	SubmitStarted struct {
		ID    string
		Draft Draft
	}
	GenerateStarted   struct{}
	GenerateSucceeded struct{ Image GeneratedImage }
	UploadStarted     struct{}
	UploadSucceeded   struct{ Metadata StoredMetadata }
	MintStarted       struct{}
	MintSent          struct{ TxHash string }
	MintSucceeded     struct{ Record MintRecord }
	// StageFailed ends the submission. It is used for every stage.
	StageFailed struct{ Err *Error }
)

func (SubmitStarted) isAction()     {}
func (GenerateStarted) isAction()   {}
func (GenerateSucceeded) isAction() {}
func (UploadStarted) isAction()     {}
func (UploadSucceeded) isAction()   {}
func (MintStarted) isAction()       {}
func (MintSent) isAction()          {}
func (MintSucceeded) isAction()     {}
func (StageFailed) isAction()       {}

// Reduce returns the state after applying a. It never mutates s.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SubmitStarted:
		return State{
			SubmissionID: a.ID,
			Phase:        PhaseIdle,
			Busy:         true,
			Message:      "Submitting...",
			Draft:        a.Draft,
		}
	case GenerateStarted:
		return s.enter(PhaseGenerating)
	case GenerateSucceeded:
		img := a.Image
		s.Image = &img
	case UploadStarted:
		return s.enter(PhaseUploading)
	case UploadSucceeded:
		md := a.Metadata
		s.Metadata = &md
	case MintStarted:
		return s.enter(PhaseMinting)
	case MintSent:
		s.PendingTx = a.TxHash
	case MintSucceeded:
		rec := a.Record
		s.Minted = &rec
		s.PendingTx = ""
		s.Phase = PhaseIdle
		s.Busy = false
		s.Outcome = OutcomeSucceeded
		s.Message = "Minted"
	case StageFailed:
		s.Phase = PhaseIdle
		s.Busy = false
		s.Outcome = OutcomeFailed
		s.Err = a.Err
		if a.Err != nil {
			s.Message = a.Err.Msg
		}
	}
	return s
}

func (s State) enter(p Phase) State {
	s.Phase = p
	s.Message = p.progress()
	return s
}
