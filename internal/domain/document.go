package domain

import (
	"fmt"
	"strings"
	"time"
)

// DocumentType identifies the kind of content a document ref points at.
type DocumentType string

const (
	DocumentTypeQuestion DocumentType = "question"
	DocumentTypeAnswer   DocumentType = "answer"
	DocumentTypeArticle  DocumentType = "article"
)

// DocumentRef is a tagged reference to a document owned by the forum
// application. The core never dereferences the parent directly; it works
// against the denormalized snapshot below.
type DocumentRef struct {
	Type DocumentType
	ID   string
}

func (r DocumentRef) String() string {
	return string(r.Type) + ":" + r.ID
}

// ParseDocumentRef parses a "type:id" string.
func ParseDocumentRef(s string) (DocumentRef, error) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok {
		return DocumentRef{}, fmt.Errorf("document ref %q is not type:id", s)
	}
	ref := DocumentRef{Type: DocumentType(typ), ID: id}
	if err := ValidateDocumentRef(ref); err != nil {
		return DocumentRef{}, err
	}
	return ref, nil
}

// ChangeKind describes why a document's content changed.
type ChangeKind string

const (
	ChangeKindCreated    ChangeKind = "created"
	ChangeKindEdited     ChangeKind = "edited"
	ChangeKindAttachment ChangeKind = "attachment"
)

// Document is the read-model snapshot of a forum document, maintained from
// the "content changed" signal. Title/body/answer text are what gets chunked
// and what keyword search ranks over.
type Document struct {
	Ref               DocumentRef
	SpaceID           string
	SpaceSlug         string
	Slug              string
	Title             string
	Body              string
	AnswerText        string // accepted answer text, questions only
	AuthorID          string
	AuthorName        string
	Tags              []string
	VoteScore         int
	AttachmentTextKey string // object storage key of pre-extracted attachment text
	LastActivityAt    time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ChangeSignal is the payload the forum application sends when a document is
// created or its content changes.
type ChangeSignal struct {
	Ref               DocumentRef
	SpaceID           string
	SpaceSlug         string
	Slug              string
	Title             string
	Body              string
	AnswerText        string
	AuthorID          string
	AuthorName        string
	Tags              []string
	VoteScore         int
	AttachmentTextKey string
	LastActivityAt    time.Time
	Kind              ChangeKind
}

// Space is the scope a document belongs to. AnswerChunkLimit, when set,
// overrides the global answer retrieval fan-out for that space.
type Space struct {
	ID               string
	Slug             string
	Name             string
	AnswerChunkLimit int // 0 means no override
}

// NewDocumentFromSignal builds a snapshot from a change signal.
func NewDocumentFromSignal(sig ChangeSignal, now time.Time) *Document {
	return &Document{
		Ref:               sig.Ref,
		SpaceID:           sig.SpaceID,
		SpaceSlug:         sig.SpaceSlug,
		Slug:              sig.Slug,
		Title:             sig.Title,
		Body:              sig.Body,
		AnswerText:        sig.AnswerText,
		AuthorID:          sig.AuthorID,
		AuthorName:        sig.AuthorName,
		Tags:              sig.Tags,
		VoteScore:         sig.VoteScore,
		AttachmentTextKey: sig.AttachmentTextKey,
		LastActivityAt:    sig.LastActivityAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ValidateDocumentRef validates a DocumentRef.
func ValidateDocumentRef(r DocumentRef) error {
	if r.ID == "" {
		return fmt.Errorf("document ref ID is required")
	}
	if !isValidDocumentType(r.Type) {
		return fmt.Errorf("document ref Type is invalid: %s", r.Type)
	}
	return nil
}

// ValidateChangeSignal validates a ChangeSignal.
func ValidateChangeSignal(sig *ChangeSignal) error {
	if sig == nil {
		return fmt.Errorf("change signal cannot be nil")
	}
	if err := ValidateDocumentRef(sig.Ref); err != nil {
		return err
	}
	if sig.SpaceID == "" {
		return fmt.Errorf("change signal SpaceID is required")
	}
	if sig.Title == "" && sig.Body == "" {
		return fmt.Errorf("change signal needs a title or body")
	}
	if sig.Kind != "" && !isValidChangeKind(sig.Kind) {
		return fmt.Errorf("change signal Kind is invalid: %s", sig.Kind)
	}
	return nil
}

func isValidDocumentType(t DocumentType) bool {
	switch t {
	case DocumentTypeQuestion, DocumentTypeAnswer, DocumentTypeArticle:
		return true
	}
	return false
}

func isValidChangeKind(k ChangeKind) bool {
	switch k {
	case ChangeKindCreated, ChangeKindEdited, ChangeKindAttachment:
		return true
	}
	return false
}
