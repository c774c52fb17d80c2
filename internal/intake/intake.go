// Package intake consumes external orders from NATS and feeds them into the
// catalog as schedule requests. Every lifecycle transition is published back
// so upstream systems can follow a request without polling.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/signalsfoundry/mission-ledger/catalog"
	"github.com/signalsfoundry/mission-ledger/internal/logging"
	"github.com/signalsfoundry/mission-ledger/model"
)

const (
	// OrderSubjects matches order.image.created, order.maintenance.created,
	// and order.outage.created.
	OrderSubjects = "order.*.created"

	statusSubjectPrefix = "request.status."
)

// orderMessage is the wire shape of an order creation event.
type orderMessage struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Priority  int     `json:"priority"`
	ImageType string  `json:"image_type,omitempty"`

	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	DeliveryDeadline time.Time `json:"delivery_deadline"`

	NumberOfVisits   int `json:"number_of_visits,omitempty"`
	RevisitSeconds   int `json:"revisit_frequency,omitempty"`
}

// statusMessage is the wire shape of a request status notification.
type statusMessage struct {
	RequestID string    `json:"request_id"`
	OrderID   string    `json:"order_id"`
	OrderType string    `json:"order_type"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher abstracts the NATS publish side for tests.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// RequestSink receives normalized requests. The catalog satisfies this.
type RequestSink interface {
	AddRequest(r *model.ScheduleRequest) error
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Consumer) { c.now = now }
}

// WithPublisher overrides the status publisher, for tests.
func WithPublisher(pub Publisher) Option {
	return func(c *Consumer) { c.pub = pub }
}

// Consumer subscribes to order subjects and converts each order into
// schedule requests.
type Consumer struct {
	nc   *nats.Conn
	pub  Publisher
	sink RequestSink
	log  logging.Logger
	now  func() time.Time

	subs []*nats.Subscription
}

// NewConsumer wires a consumer against an established NATS connection.
func NewConsumer(nc *nats.Conn, sink RequestSink, log logging.Logger, opts ...Option) *Consumer {
	if log == nil {
		log = logging.Noop()
	}
	c := &Consumer{
		nc:   nc,
		sink: sink,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
	if nc != nil {
		c.pub = nc
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the order subjects. Messages are handled on the NATS
// delivery goroutine; the catalog's own locking makes that safe.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.nc.Subscribe(OrderSubjects, func(msg *nats.Msg) {
		c.handleOrder(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", OrderSubjects, err)
	}
	c.subs = append(c.subs, sub)
	c.log.Info(ctx, "order intake started", logging.String("subjects", OrderSubjects))
	return nil
}

// Stop drains the subscriptions.
func (c *Consumer) Stop() {
	for _, sub := range c.subs {
		_ = sub.Drain()
	}
	c.subs = nil
}

func (c *Consumer) handleOrder(ctx context.Context, msg *nats.Msg) {
	orderType, ok := orderTypeFromSubject(msg.Subject)
	if !ok {
		c.log.Warn(ctx, "unrecognized order subject", logging.String("subject", msg.Subject))
		return
	}

	var wire orderMessage
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		c.log.Error(ctx, "malformed order payload",
			logging.String("subject", msg.Subject),
			logging.String("error", err.Error()),
		)
		return
	}

	order := &model.Order{
		ID:               wire.ID,
		Type:             orderType,
		Latitude:         wire.Latitude,
		Longitude:        wire.Longitude,
		Priority:         wire.Priority,
		ImageType:        model.ImageType(wire.ImageType),
		WindowStart:      wire.StartTime,
		WindowEnd:        wire.EndTime,
		DeliveryDeadline: wire.DeliveryDeadline,
		NumberOfVisits:   wire.NumberOfVisits,
		RevisitFrequency: time.Duration(wire.RevisitSeconds) * time.Second,
	}

	if err := c.ProcessOrder(ctx, order); err != nil {
		c.log.Error(ctx, "order intake failed",
			logging.String("order_id", order.ID),
			logging.String("order_type", string(order.Type)),
			logging.String("error", err.Error()),
		)
	}
}

// ProcessOrder expands an order into requests, registers them, and publishes
// a received notification per request. A validation failure produces a
// single rejected notification instead.
func (c *Consumer) ProcessOrder(ctx context.Context, order *model.Order) error {
	now := c.now()

	requests, err := model.RequestsFromOrder(order, now)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			c.publishStatus(ctx, &model.ScheduleRequest{
				OrderID:   order.ID,
				OrderType: order.Type,
				Status:    model.RequestRejected,
			}, err.Error(), now)
		}
		return fmt.Errorf("expand order %s: %w", order.ID, err)
	}

	for _, req := range requests {
		if err := c.sink.AddRequest(req); err != nil {
			if errors.Is(err, catalog.ErrRequestExists) {
				// Redelivery of an order we already hold. Idempotent.
				c.log.Debug(ctx, "duplicate request ignored",
					logging.String("request_id", req.ID),
				)
				continue
			}
			return fmt.Errorf("register request %s: %w", req.ID, err)
		}
		c.publishStatus(ctx, req, "", now)
	}

	c.log.Info(ctx, "order accepted",
		logging.String("order_id", order.ID),
		logging.String("order_type", string(order.Type)),
		logging.Int("requests", len(requests)),
	)
	return nil
}

func (c *Consumer) publishStatus(ctx context.Context, req *model.ScheduleRequest, message string, at time.Time) {
	PublishStatus(ctx, c.pub, c.log, req, message, at)
}

// PublishStatus emits a request status notification on
// request.status.<status>. Failures are logged, never fatal; status traffic
// is advisory.
func PublishStatus(ctx context.Context, pub Publisher, log logging.Logger, req *model.ScheduleRequest, message string, at time.Time) {
	if pub == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	if message == "" {
		message = req.StatusMessage
	}

	payload, err := json.Marshal(statusMessage{
		RequestID: req.ID,
		OrderID:   req.OrderID,
		OrderType: string(req.OrderType),
		Status:    string(req.Status),
		Message:   message,
		At:        at,
	})
	if err != nil {
		log.Error(ctx, "encode status notification", logging.String("error", err.Error()))
		return
	}

	subject := statusSubjectPrefix + string(req.Status)
	if err := pub.Publish(subject, payload); err != nil {
		log.Warn(ctx, "publish status notification failed",
			logging.String("subject", subject),
			logging.String("request_id", req.ID),
			logging.String("error", err.Error()),
		)
	}
}

// NotifyCatalogEvents bridges catalog change notifications onto the status
// subjects. Subscribe it once at startup.
func NotifyCatalogEvents(ctx context.Context, cat *catalog.Catalog, pub Publisher, log logging.Logger, now func() time.Time) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	cat.Subscribe(func(ev catalog.Event) {
		if ev.Type != catalog.EventRequestStatusChanged || ev.Request == nil {
			return
		}
		PublishStatus(ctx, pub, log, ev.Request, "", now())
	})
}

func orderTypeFromSubject(subject string) (model.OrderType, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != "order" || parts[2] != "created" {
		return "", false
	}
	switch t := model.OrderType(parts[1]); t {
	case model.OrderImage, model.OrderMaintenance, model.OrderOutage:
		return t, true
	default:
		return "", false
	}
}
