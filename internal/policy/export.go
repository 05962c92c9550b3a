package policy

import (
	"context"

	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
)

// ExportPolicy filters and decorates objects during export.
type ExportPolicy interface {
	ShouldExportObject(obj orm.Object) bool
	ShouldFollowReference(obj orm.Object, target model.ID, field string) bool
	Attachments(ctx context.Context, obj orm.Object) ([]model.Attachment, error)
}

// DefaultExport exports everything reachable and adds no attachments.
type DefaultExport struct{}

var _ ExportPolicy = DefaultExport{}

func (DefaultExport) ShouldExportObject(orm.Object) bool                      { return true }
func (DefaultExport) ShouldFollowReference(orm.Object, model.ID, string) bool { return true }

func (DefaultExport) Attachments(context.Context, orm.Object) ([]model.Attachment, error) {
	return nil, nil
}
