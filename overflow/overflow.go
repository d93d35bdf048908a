// Package overflow decides where attachment payloads live: inlined into the
// message content, or persisted to an external content store and substituted
// with an opaque reference. The goal is to keep a single conversational turn
// bounded in size without the core ever owning storage itself.
package overflow

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Attachment is a transient payload attached to one message. It exists only
// for the duration of a single message-processing pass.
type Attachment struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Reference substitutes an Attachment that was persisted externally. The
// reference ID is opaque and issued by the store; the core holds no further
// ownership over the content after issuance.
type Reference struct {
	ID   string `json:"referenceId"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Metadata describes an attachment being offered to the content store.
type Metadata struct {
	MIMEType string
	Source   string
	FileName string
	Tags     []string
}

// ContentStore is the external durable-storage service. The store owns the
// inline-vs-offload threshold policy exclusively; the pipeline never inspects
// or re-implements it.
type ContentStore interface {
	// IsInitialized reports whether the store is ready to accept content.
	IsInitialized() bool

	// StoreContentIfLarge offers data to the store. It returns the issued
	// reference ID, or an empty string when the store declines and the
	// caller should inline instead.
	StoreContentIfLarge(ctx context.Context, data []byte, meta Metadata) (string, error)
}

// attachmentSource tags store submissions that originate from message
// attachments.
const attachmentSource = "attachment"

// Pipeline expands message content with attachments, offloading oversized
// payloads to the content store when one is available.
type Pipeline struct {
	store ContentStore
	log   *zap.Logger
}

// NewPipeline creates a Pipeline. Both arguments may be nil: a nil store
// means every attachment is inlined, a nil logger disables logging.
func NewPipeline(store ContentStore, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{store: store, log: log.Named("overflow")}
}

// Process returns content expanded with every attachment: each one appears
// either as its literal data (base64 embedding) or as a resolvable reference
// issued by the store — never neither.
//
// Store failures are treated as "decline to offload", never as a reason to
// drop the attachment.
func (p *Pipeline) Process(ctx context.Context, content string, attachments []Attachment) (string, error) {
	if len(attachments) == 0 {
		return content, nil
	}

	var b strings.Builder
	b.WriteString(content)

	for _, att := range attachments {
		ref, ok := p.offload(ctx, att)
		b.WriteString("\n\n")
		if ok {
			writeReference(&b, att, ref)
		} else {
			writeInline(&b, att)
		}
	}
	return b.String(), nil
}

// offload offers one attachment to the store. It reports false whenever the
// attachment must be inlined instead.
func (p *Pipeline) offload(ctx context.Context, att Attachment) (string, bool) {
	if p.store == nil || !p.store.IsInitialized() {
		return "", false
	}

	refID, err := p.store.StoreContentIfLarge(ctx, att.Data, Metadata{
		MIMEType: att.Type,
		Source:   attachmentSource,
		FileName: att.Name,
		Tags:     []string{attachmentSource},
	})
	if err != nil {
		p.log.Warn("content store declined attachment",
			zap.String("name", att.Name), zap.Error(err))
		return "", false
	}
	return refID, refID != ""
}

func writeInline(b *strings.Builder, att Attachment) {
	fmt.Fprintf(b, "Attachment %q (%s, %d bytes):\n%s",
		att.Name, att.Type, att.Size, base64.StdEncoding.EncodeToString(att.Data))
}

func writeReference(b *strings.Builder, att Attachment, refID string) {
	fmt.Fprintf(b, "Attachment %q (%s, %d bytes) stored externally, reference: %s",
		att.Name, att.Type, att.Size, refID)
}

// Dereference builds the Reference record for an attachment that was
// offloaded under the given ID.
func Dereference(att Attachment, refID string) Reference {
	return Reference{ID: refID, Name: att.Name, Type: att.Type, Size: att.Size}
}
