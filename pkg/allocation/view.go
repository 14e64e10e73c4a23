// Package allocation answers which documents an annotator should see.
package allocation

import (
	"context"
	"fmt"
	"iter"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/pawls/pkg/docid"
	"github.com/hashicorp-forge/pawls/pkg/status"
)

// Allocation is an annotator's working set.
//
// HasAllocatedPapers is false when the annotator has no status file and
// Papers lists every stored document instead. Saves from such an annotator
// are accepted and dropped.
type Allocation struct {
	Papers             []status.Record `json:"papers"`
	HasAllocatedPapers bool            `json:"hasAllocatedPapers"`
}

// StatusReader reads annotator status files.
type StatusReader interface {
	Get(ctx context.Context, annotator string) (*status.File, error)
}

// DocumentLister lists stored documents.
type DocumentLister interface {
	ListIDs(ctx context.Context) iter.Seq2[docid.DocumentID, error]
}

// View builds allocations.
type View struct {
	status StatusReader
	docs   DocumentLister
	logger hclog.Logger
}

// NewView creates a View.
func NewView(statusReader StatusReader, docs DocumentLister, logger hclog.Logger) *View {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &View{
		status: statusReader,
		docs:   docs,
		logger: logger.Named("allocation"),
	}
}

// GetAllocation returns annotator's records in status file order, or a
// default record for every stored document if the annotator has none.
func (v *View) GetAllocation(ctx context.Context, annotator string) (Allocation, error) {
	f, err := v.status.Get(ctx, annotator)
	if err != nil {
		return Allocation{}, fmt.Errorf("failed to read status for %s: %w", annotator, err)
	}
	if f.Len() > 0 {
		return Allocation{Papers: f.Records(), HasAllocatedPapers: true}, nil
	}

	papers := []status.Record{}
	for id, err := range v.docs.ListIDs(ctx) {
		if err != nil {
			return Allocation{}, fmt.Errorf("failed to list documents: %w", err)
		}
		papers = append(papers, status.NewRecord(id, ""))
	}

	v.logger.Debug("no allocation, listing all documents",
		"annotator", annotator, "documents", len(papers))
	return Allocation{Papers: papers, HasAllocatedPapers: false}, nil
}
