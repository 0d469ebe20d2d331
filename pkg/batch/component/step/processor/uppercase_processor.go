// Package processor provides the transform stage of the import pipeline.
package processor

import (
	"context"
	"strings"
	"time"

	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// Clock returns the current time.
type Clock func() time.Time

// UppercaseProcessor upper-cases the name of a row and stamps its processing time.
type UppercaseProcessor struct {
	now Clock
}

// NewUppercaseProcessor creates a processor using the wall clock.
func NewUppercaseProcessor() *UppercaseProcessor {
	return &UppercaseProcessor{now: time.Now}
}

// WithClock returns a copy of p that stamps records with now.
func (p *UppercaseProcessor) WithClock(now Clock) *UppercaseProcessor {
	return &UppercaseProcessor{now: now}
}

// Process implements port.ItemProcessor.
func (p *UppercaseProcessor) Process(ctx context.Context, item *model.CSVRecord) (*model.Record, error) {
	if item == nil {
		return nil, exception.NewValidationError("processor", "nil input row")
	}
	rec := &model.Record{
		Name:        strings.ToUpper(item.Name),
		Age:         item.Age,
		Email:       item.Email,
		ProcessedAt: p.now(),
	}
	logger.Debugf("Processed line %d: name=%s age=%d email=%s", item.Line, rec.Name, rec.Age, rec.Email)
	return rec, nil
}

var _ port.ItemProcessor[*model.CSVRecord, *model.Record] = (*UppercaseProcessor)(nil)
