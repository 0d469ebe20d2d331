package incrementer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// InvocationIDGenerator builds uniquely identified job invocations.
type InvocationIDGenerator interface {
	// Next returns a new invocation for filename/sourcePath against database.
	Next(database dbctx.Identifier, filename, sourcePath string) model.JobInvocation
}

// UUIDInvocationIDGenerator identifies invocations with random (version 4) UUIDs.
// A process-local sequence and the wall clock are recorded alongside for ordering.
type UUIDInvocationIDGenerator struct {
	sequence atomic.Uint64
	now      func() time.Time
	newUUID  func() uuid.UUID
}

// NewUUIDInvocationIDGenerator creates a new instance of UUIDInvocationIDGenerator.
func NewUUIDInvocationIDGenerator() *UUIDInvocationIDGenerator {
	return &UUIDInvocationIDGenerator{
		now:     time.Now,
		newUUID: uuid.New,
	}
}

// Next implements InvocationIDGenerator.
func (g *UUIDInvocationIDGenerator) Next(database dbctx.Identifier, filename, sourcePath string) model.JobInvocation {
	inv := model.JobInvocation{
		ID:         g.newUUID(),
		Database:   database,
		Filename:   filename,
		SourcePath: sourcePath,
		CreatedAt:  g.now(),
		Sequence:   g.sequence.Add(1),
	}
	logger.Debugf("InvocationIDGenerator: issued '%s' (seq %d) for file '%s'.", inv.Key(), inv.Sequence, filename)
	return inv
}

// String returns the string representation of the generator.
func (g *UUIDInvocationIDGenerator) String() string {
	return fmt.Sprintf("UUIDInvocationIDGenerator[issued=%d]", g.sequence.Load())
}

// FixedInvocationIDGenerator always issues the same UUID.
// It reproduces an identity collision and exists for tests of the stale-result guard.
type FixedInvocationIDGenerator struct {
	ID uuid.UUID
}

// Next implements InvocationIDGenerator.
func (g FixedInvocationIDGenerator) Next(database dbctx.Identifier, filename, sourcePath string) model.JobInvocation {
	return model.JobInvocation{
		ID:         g.ID,
		Database:   database,
		Filename:   filename,
		SourcePath: sourcePath,
		CreatedAt:  time.Now(),
	}
}

var (
	_ InvocationIDGenerator = (*UUIDInvocationIDGenerator)(nil)
	_ InvocationIDGenerator = FixedInvocationIDGenerator{}
)
