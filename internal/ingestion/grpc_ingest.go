package ingestion

import (
	"context"

	"LaunchLedger/internal/core"

	"github.com/rs/zerolog"
)

// AdminIngestService applies a single wire event synchronously. It backs the
// admin inject endpoint used for manual replays and backfills; NATS remains
// the primary ingestion path.
type AdminIngestService struct {
	proc Processor
	log  zerolog.Logger
}

func NewAdminIngestService(proc Processor, log zerolog.Logger) *AdminIngestService {
	return &AdminIngestService{proc: proc, log: log}
}

// Inject parses data and applies it. Malformed payloads return ErrMalformed;
// ingest failures return the *core.IngestError from the processor.
func (s *AdminIngestService) Inject(ctx context.Context, data []byte) (core.Result, error) {
	evt, err := ParseEvent(data)
	if err != nil {
		return core.Result{}, err
	}

	res, err := s.proc.Process(ctx, evt)
	if err != nil {
		return core.Result{}, err
	}

	s.log.Info().
		Str("signature", evt.Signature()).
		Str("event_type", evt.EventType().String()).
		Bool("duplicate", res.Duplicate).
		Msg("admin event injected")
	return res, nil
}
