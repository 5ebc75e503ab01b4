// Package save applies item edits optimistically and writes them to the
// remote entity store in the background.
package save

import (
	"context"
	"errors"
	"fmt"

	"workboard/internal/domain"
)

// Remote is the subset of the item API the coordinator writes through.
//
//go:generate mockgen -source=remote.go -destination=mock_remote_test.go -package=save
type Remote interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	CreateItem(ctx context.Context, fields domain.Patch) (domain.Item, error)
	UpdateItem(ctx context.Context, id string, patch domain.Patch) (domain.Item, error)
	DeleteItem(ctx context.Context, id string) error
	AddAttachment(ctx context.Context, itemID string, upload domain.AttachmentUpload) (domain.Attachment, error)
}

// Op names the kind of write that produced a notice.
type Op string

const (
	OpUpdate Op = "update"
	OpCreate Op = "create"
	OpDelete Op = "delete"
	OpAttach Op = "attach"
)

// Notice describes one failed write.
type Notice struct {
	ItemID     string
	Op         Op
	Fields     []domain.Field
	Err        error
	Validation bool
	Message    string
}

// Notifier receives exactly one notice per failed write.
type Notifier interface {
	Notify(n Notice)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(Notice)

func (f NotifyFunc) Notify(n Notice) { f(n) }

func newNotice(itemID string, op Op, fields []domain.Field, err error) Notice {
	n := Notice{ItemID: itemID, Op: op, Fields: fields, Err: err}
	if errors.Is(err, domain.ErrSubitemsIncomplete) {
		n.Validation = true
		n.Message = "Complete all sub-items before marking this item done."
		return n
	}
	switch op {
	case OpCreate:
		n.Message = fmt.Sprintf("Could not create item: %v", err)
	case OpDelete:
		n.Message = fmt.Sprintf("Could not delete item: %v", err)
	case OpAttach:
		n.Message = fmt.Sprintf("Could not upload attachment: %v", err)
	default:
		n.Message = fmt.Sprintf("Could not save changes: %v", err)
	}
	return n
}
