package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-fieldnode/internal/telemetry"
)

// Step names used in fault logs.
const (
	stepAcquire = "acquire"
	stepActuate = "actuate"
	stepPersist = "persist"
	stepPublish = "publish"
	stepCommand = "command"
)

// Runtime drives one Device through its cycle and applies the commands
// received on the device's command topic.
//
// The loop runs on the goroutine calling Run; command handlers run on the
// transport's goroutine. They share only the device's atomic interval and
// status cells. Commands for the same device are applied one at a time.
type Runtime struct {
	device  Device
	channel CommandChannel
	sink    telemetry.Sink
	store   ConfigStore
	logger  Logger

	sleep Sleeper
	now   func() time.Time

	started     atomic.Bool
	schemaReady bool // loop goroutine only
	cmdMu       sync.Mutex
}

// NewRuntime creates a Runtime for dev. The channel, sink and store may be
// shared with other runtimes.
func NewRuntime(dev Device, channel CommandChannel, sink telemetry.Sink, store ConfigStore) *Runtime {
	return &Runtime{
		device:  dev,
		channel: channel,
		sink:    sink,
		store:   store,
		logger:  noopLogger{},
		sleep:   sleepContext,
		now:     time.Now,
	}
}

// SetLogger sets the logger for the runtime.
func (r *Runtime) SetLogger(logger Logger) {
	r.logger = logger
}

// Device returns the driven device.
func (r *Runtime) Device() Device {
	return r.device
}

// Describe returns a snapshot of the device.
func (r *Runtime) Describe() map[string]any {
	d := r.device.Describe()
	d["kind"] = string(r.device.Kind())
	return d
}

// Start binds the command handler and subscribes to the command topic.
// Only the first call has an effect.
func (r *Runtime) Start() error {
	if !r.started.CompareAndSwap(false, true) {
		return nil
	}

	id := r.device.Identity()
	if err := r.channel.RegisterHandler(id.CmdTopic, r.onCommand); err != nil {
		r.started.Store(false)
		return fmt.Errorf("registering handler for %s: %w", id.CmdTopic, err)
	}
	if err := r.channel.Subscribe(id.CmdTopic); err != nil {
		r.started.Store(false)
		return fmt.Errorf("subscribing to %s: %w", id.CmdTopic, err)
	}

	r.logger.Info("device started",
		"device_id", id.ID,
		"profile", r.device.Profile(),
		"cmd_topic", id.CmdTopic,
	)
	return nil
}

// Run starts the runtime and loops until ctx is cancelled. Cancellation
// is observed between steps and interrupts the sleep; Run then returns nil.
// Step faults are logged and never end the loop.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}

	id := r.device.Identity().ID
	for {
		if ctx.Err() != nil {
			break
		}
		r.step(ctx)

		if ctx.Err() != nil {
			break
		}
		r.persist(ctx)

		if ctx.Err() != nil {
			break
		}
		r.publishAttrs()

		r.logger.Debug("device cycle", "device_id", id, "device", r.Describe())

		// The interval is read now; a command arriving during the sleep
		// applies to the next cycle.
		if err := r.sleep(ctx, r.device.Interval()); err != nil {
			break
		}
		r.device.Advance()
	}

	r.logger.Info("device stopped", "device_id", id)
	return nil
}

func (r *Runtime) step(ctx context.Context) {
	name := stepAcquire
	if r.device.Kind() == KindBistableActuator {
		name = stepActuate
	}
	if err := r.device.Step(ctx); err != nil {
		r.fault(name, fmt.Errorf("%w: %w", ErrAcquisition, err))
	}
}

func (r *Runtime) persist(ctx context.Context) {
	if !r.schemaReady {
		if err := r.sink.EnsureSchema(ctx, r.device.Schema()); err != nil {
			r.fault(stepPersist, fmt.Errorf("%w: %w", ErrPersistence, err))
			return
		}
		r.schemaReady = true
	}
	if err := r.sink.Insert(ctx, r.device.Identity().ID, r.device.Row()); err != nil {
		r.fault(stepPersist, fmt.Errorf("%w: %w", ErrPersistence, err))
	}
}

func (r *Runtime) publishAttrs() {
	msg, ok := r.device.Payload(r.now())
	if !ok {
		return
	}
	if err := r.publish(msg); err != nil {
		r.fault(stepPublish, err)
	}
}

// publish encodes msg and sends it to the attrs topic.
func (r *Runtime) publish(msg map[string]any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", ErrPublish, err)
	}
	if err := r.channel.Publish(r.device.Identity().AttrsTopic, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

func (r *Runtime) fault(step string, err error) {
	r.logger.Error("device step failed",
		"device_id", r.device.Identity().ID,
		"step", step,
		"error", err,
	)
}

// onCommand is the handler registered on the command topic. Rejected
// commands are logged here so that nothing propagates to the transport.
func (r *Runtime) onCommand(_ string, payload []byte) error {
	if err := r.HandleCommand(payload); err != nil {
		r.logger.Warn("command not applied",
			"device_id", r.device.Identity().ID,
			"step", stepCommand,
			"error", err,
		)
	}
	return nil
}

// HandleCommand applies one command message.
//
// The message must be a JSON object, otherwise ErrDecode is returned and
// nothing else happens. The first recognised key, in the device's
// priority order, is applied: the value is validated, written to the
// store, set in memory and acknowledged on the attrs topic. A rejected
// value or a store failure leaves the interval unchanged, publishes a
// reply with status ERROR and returns ErrConfig. Messages with no
// recognised key are ignored.
func (r *Runtime) HandleCommand(payload []byte) error {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	for _, p := range r.device.Parameters() {
		if raw, ok := msg[p.Command]; ok {
			return r.apply(p, raw)
		}
	}
	return nil
}

func (r *Runtime) apply(p *Parameter, raw json.RawMessage) error {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	id := r.device.Identity()

	n, err := parseInterval(raw)
	if err != nil {
		r.reply(p.nack(fmt.Sprintf("Rejected: %v", err)))
		return fmt.Errorf("%w: %s: %w", ErrConfig, p.Command, err)
	}

	if err := r.store.Set(id.storeKey(p.Field), strconv.FormatInt(n, 10)); err != nil {
		r.reply(p.nack("Not updated: settings could not be saved"))
		return fmt.Errorf("%w: persisting %s: %w", ErrConfig, p.Field, err)
	}
	p.set(n)

	r.logger.Info("interval updated", "device_id", id.ID, "field", p.Field, "seconds", n)
	return r.publish(p.ack(n))
}

// reply publishes msg, logging a failure.
func (r *Runtime) reply(msg map[string]any) {
	if err := r.publish(msg); err != nil {
		r.fault(stepCommand, err)
	}
}
