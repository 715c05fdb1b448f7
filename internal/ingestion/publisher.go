package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"LaunchLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	SubjectGraduationReady = "launch.graduation.ready"
	SubjectRefundCandidate = "launch.refund.candidate"
)

// GraduationReadyNotice is published when every graduation gate passes.
type GraduationReadyNotice struct {
	Launch           string    `json:"launchAddress"`
	MarketCapUSD     uint64    `json:"marketCapUsd"`
	Holders          uint64    `json:"holders"`
	ConcentrationBps uint64    `json:"concentrationBps"`
	EvaluatedAt      time.Time `json:"evaluatedAt"`
}

// RefundCandidateNotice is published for expired launches that never graduated.
type RefundCandidateNotice struct {
	Launch      string    `json:"launchAddress"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiredAt   time.Time `json:"expiredAt"`
	TotalSol    uint64    `json:"totalSol"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// streamPublisher is the part of jetstream.JetStream used for publishing.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NoticePublisher sends scheduler notices to JetStream. The message ID is
// subject plus launch, so the stream's duplicate window absorbs repeats from
// consecutive scheduler runs.
type NoticePublisher struct {
	js      streamPublisher
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewNoticePublisher(js streamPublisher, metrics *observability.Metrics, log zerolog.Logger) *NoticePublisher {
	return &NoticePublisher{js: js, metrics: metrics, log: log}
}

func (p *NoticePublisher) PublishGraduationReady(ctx context.Context, n GraduationReadyNotice) error {
	return p.publish(ctx, SubjectGraduationReady, n.Launch, n)
}

func (p *NoticePublisher) PublishRefundCandidate(ctx context.Context, n RefundCandidateNotice) error {
	return p.publish(ctx, SubjectRefundCandidate, n.Launch, n)
}

func (p *NoticePublisher) publish(ctx context.Context, subject, launch string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(subject+":"+launch))
	result := "ok"
	if err != nil {
		result = "error"
		p.log.Warn().Err(err).Str("subject", subject).Str("launch", launch).Msg("notice publish failed")
	}
	if p.metrics != nil {
		p.metrics.NoticesPublished.WithLabelValues(subject, result).Inc()
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
