// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tomtom215/vigil/internal/eventbus"
	"github.com/tomtom215/vigil/internal/geo"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/models"
)

// Rejection reasons reported in vigil_recorder_rejected_total.
const (
	ReasonDecode       = "decode"
	ReasonInvalid      = "invalid"
	ReasonInvalidPoint = "invalid_point"
	ReasonUnknownSOS   = "unknown_sos"
	ReasonUnknownTopic = "unknown_topic"
	ReasonStore        = "store"
)

// DefaultNearbyCount is how many patrols an SOS alert records as nearby.
const DefaultNearbyCount = 3

// Store is the persistence the recorder writes to. *store.Store satisfies it.
type Store interface {
	UpdatePatrol(ctx context.Context, id string, fn func(*models.PatrolState) error) (*models.PatrolState, error)
	ListPatrols(ctx context.Context) ([]models.PatrolState, error)
	AppendLocations(ctx context.Context, records ...models.LocationRecord) error
	PutSOS(ctx context.Context, rec *models.SOSRecord) error
	UpdateSOS(ctx context.Context, id string, fn func(*models.SOSRecord) error) (*models.SOSRecord, error)
}

// Source delivers bus messages. *eventbus.Bus satisfies it.
type Source interface {
	Events(ctx context.Context) (<-chan *message.Message, error)
}

// Options configures a Recorder.
type Options struct {
	// NearbyCount is the size of an alert's alertedNearby set.
	NearbyCount int
	// Redeliver nacks messages whose storage failed so the transport
	// delivers them again. Only useful on a durable transport.
	Redeliver bool
	// Now stamps updatedAt fields.
	Now func() time.Time
}

// Recorder applies hub events to a Store.
type Recorder struct {
	store  Store
	source Source
	opts   Options
	log    zerolog.Logger
}

// New creates a Recorder. source may be nil when events are fed through
// Handle directly.
func New(st Store, source Source, opts Options) *Recorder {
	if opts.NearbyCount <= 0 {
		opts.NearbyCount = DefaultNearbyCount
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Recorder{
		store:  st,
		source: source,
		opts:   opts,
		log:    logging.WithComponent("recorder"),
	}
}

// rejection is an event the recorder will not store. It is acked.
type rejection struct {
	reason string
	err    error
}

func (r *rejection) Error() string { return r.reason + ": " + r.err.Error() }

func (r *rejection) Unwrap() error { return r.err }

func reject(reason string, err error) error {
	return &rejection{reason: reason, err: err}
}

// Handle applies one event. It returns an error only when storage failed;
// invalid events are counted, logged and swallowed.
func (r *Recorder) Handle(ctx context.Context, topic string, payload []byte) error {
	start := time.Now()

	var err error
	switch topic {
	case models.TopicPresence:
		err = r.onPresence(ctx, payload)
	case models.TopicLocation:
		err = r.onLocation(ctx, payload)
	case models.TopicBuffered:
		err = r.onBuffered(ctx, payload)
	case models.TopicSession:
		err = r.onSession(ctx, payload)
	case models.TopicSOSTriggered:
		err = r.onSOSTriggered(ctx, payload)
	case models.TopicSOSStatus:
		err = r.onSOSStatus(ctx, payload)
	default:
		err = reject(ReasonUnknownTopic, fmt.Errorf("no handler for topic %q", topic))
	}

	var rej *rejection
	switch {
	case err == nil:
		metrics.RecordRecorderEvent(topic, "", time.Since(start))
		return nil
	case errors.As(err, &rej):
		metrics.RecordRecorderEvent(topic, rej.reason, time.Since(start))
		r.log.Warn().Err(rej.err).Str("topic", topic).Str("reason", rej.reason).Msg("event rejected")
		return nil
	default:
		metrics.RecordRecorderEvent(topic, ReasonStore, time.Since(start))
		r.log.Error().Err(err).Str("topic", topic).Msg("failed to record event")
		return err
	}
}

// HandleMessage applies a bus message and acks or nacks it.
func (r *Recorder) HandleMessage(msg *message.Message) {
	topic := msg.Metadata.Get(eventbus.MetadataTopic)
	if err := r.Handle(msg.Context(), topic, msg.Payload); err != nil && r.opts.Redeliver {
		msg.Nack()
		return
	}
	msg.Ack()
}

// Consume handles messages until msgs closes or ctx is canceled.
func (r *Recorder) Consume(ctx context.Context, msgs <-chan *message.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.HandleMessage(msg)
		}
	}
}

// Serve implements suture.Service: it subscribes to the source and
// consumes until ctx is canceled.
func (r *Recorder) Serve(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("recorder has no event source")
	}
	msgs, err := r.source.Events(ctx)
	if err != nil {
		return fmt.Errorf("subscribe recorder: %w", err)
	}
	r.log.Info().Msg("recorder consuming events")
	if err := r.Consume(ctx, msgs); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// The subscription ended under us; let the supervisor restart.
	return fmt.Errorf("recorder event stream closed")
}

// String implements fmt.Stringer for suture logging.
func (r *Recorder) String() string {
	return "recorder"
}

// NearbyPatrols ranks patrols that are patrolling and have a known position
// by distance from (lat, lon) and returns at most k, nearest first.
func (r *Recorder) NearbyPatrols(ctx context.Context, lat, lon float64, k int, exclude ...string) ([]models.NearbyPatrol, error) {
	patrols, err := r.store.ListPatrols(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]geo.Point, 0, len(patrols))
	for i := range patrols {
		p := &patrols[i]
		if p.Status != models.PatrolStatusPatrolling || !p.HasPosition() {
			continue
		}
		candidates = append(candidates, geo.Point{ID: p.ID, Lat: *p.Latitude, Lon: *p.Longitude})
	}

	ranked := geo.Nearest(lat, lon, candidates, k, exclude...)
	out := make([]models.NearbyPatrol, len(ranked))
	for i, rp := range ranked {
		out[i] = models.NearbyPatrol{
			PatrolID:   rp.ID,
			Latitude:   rp.Lat,
			Longitude:  rp.Lon,
			DistanceKm: rp.DistanceKm,
		}
	}
	return out, nil
}
