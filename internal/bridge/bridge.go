package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"sync"
	"time"

	"github.com/nerrad567/spimrig/internal/device"
	"github.com/nerrad567/spimrig/internal/infrastructure/mqtt"
	"github.com/nerrad567/spimrig/internal/setup"
)

const (
	// commandTimeout bounds one command, including a waited move.
	commandTimeout = 35 * time.Second

	// eventQueueSize is how many events may wait for the broker.
	eventQueueSize = 256
)

// MQTTClient is the part of mqtt.Client the bridge uses. It allows mocking
// in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Rig is the part of setup.Setup commands are executed on.
type Rig interface {
	MoveTo(ctx context.Context, target setup.Vector, wait bool) error
	SetPosition(x, y, z, t *float64)
	Has3DStage() bool
	Home(slot device.Slot) error
	SetVelocity(slot device.Slot, v float64) error
	SetLaserPower(slot device.Slot, watts float64) error
	SetLaserOn(slot device.Slot, on bool) error
	SnapImage() (*device.Image, error)
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds what a bridge needs.
type Options struct {
	// Rig executes commands. Required.
	Rig Rig

	// MQTTClient carries commands, acks, events and state. Required.
	MQTTClient MQTTClient

	// Topics builds the topic names. The zero value uses the default prefix.
	Topics mqtt.Topics

	// QoS is used for every subscription and publish.
	QoS byte

	// Logger is optional.
	Logger Logger
}

// Bridge translates between the MQTT bus and a rig.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	rig    Rig
	mqtt   MQTTClient
	topics mqtt.Topics
	qos    byte

	events chan setup.Event

	// Last published state per slot, for change detection.
	stateCache   map[device.Slot]map[string]any
	stateCacheMu sync.Mutex

	done      chan struct{}
	wg        sync.WaitGroup
	stopMu    sync.Mutex
	stopped   bool
	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Rig == nil {
		return nil, fmt.Errorf("rig is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		rig:        opts.Rig,
		mqtt:       opts.MQTTClient,
		topics:     opts.Topics,
		qos:        opts.QoS,
		events:     make(chan setup.Event, eventQueueSize),
		stateCache: make(map[device.Slot]map[string]any),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  cancel,
		logger:     opts.Logger,
	}, nil
}

// Start subscribes to command topics and starts the event publisher.
func (b *Bridge) Start(ctx context.Context) error {
	topic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", topic)

	b.startOnce.Do(func() {
		b.wg.Add(1)
		go b.publishLoop(ctx)
	})

	b.logInfo("bridge started")
	return nil
}

// Stop aborts in-flight commands and waits for the publisher to drain.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()

		b.ctxCancel()
		close(b.done)
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Notify implements setup.Observer. It never blocks; events are dropped
// when the queue is full.
func (b *Bridge) Notify(e setup.Event) {
	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.events <- e:
	default:
		b.logWarn("event queue full, dropping event", "type", e.Type, "slot", e.Slot)
	}
}

func (b *Bridge) publishLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case e := <-b.events:
			b.publishEvent(e)
		case <-ctx.Done():
			return
		case <-b.done:
			b.drain()
			return
		}
	}
}

// drain publishes whatever is still queued at shutdown.
func (b *Bridge) drain() {
	for {
		select {
		case e := <-b.events:
			b.publishEvent(e)
		default:
			return
		}
	}
}

func (b *Bridge) publishEvent(e setup.Event) {
	if !b.mqtt.IsConnected() {
		b.logDebug("broker offline, event not published", "type", e.Type)
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		b.logError("failed to marshal event", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Event(string(e.Type)), payload, b.qos, false); err != nil {
		b.logError("failed to publish event", err)
	}

	for slot, update := range stateUpdates(e) {
		b.publishState(slot, e, update)
	}
}

// stateUpdates derives per-slot state changes from an event. Failed
// operations leave the state alone.
func stateUpdates(e setup.Event) map[device.Slot]map[string]any {
	if !e.OK {
		return nil
	}

	switch e.Type {
	case setup.EventBind:
		return map[device.Slot]map[string]any{e.Slot: {"bound": true}}
	case setup.EventUnbind:
		return map[device.Slot]map[string]any{e.Slot: {"bound": false}}
	case setup.EventMove:
		if e.Position != nil {
			return map[device.Slot]map[string]any{
				device.SlotStageX: {"position": e.Position.X},
				device.SlotStageY: {"position": e.Position.Y},
				device.SlotStageZ: {"position": e.Position.Z},
			}
		}
		if e.Value != nil && e.Slot != "" {
			return map[device.Slot]map[string]any{e.Slot: {"position": *e.Value}}
		}
	case setup.EventHome:
		return map[device.Slot]map[string]any{e.Slot: {"homed_at": e.Time}}
	case setup.EventVelocity:
		if e.Value != nil {
			return map[device.Slot]map[string]any{e.Slot: {"velocity": *e.Value}}
		}
	case setup.EventLaser:
		update := map[string]any{}
		if e.Value != nil {
			update["power_w"] = *e.Value
		}
		if e.On != nil {
			update["on"] = *e.On
		}
		if len(update) > 0 {
			return map[device.Slot]map[string]any{e.Slot: update}
		}
	case setup.EventSnap:
		return map[device.Slot]map[string]any{e.Slot: {
			"width":       e.Width,
			"height":      e.Height,
			"duration_ms": float64(e.Duration) / float64(time.Millisecond),
		}}
	}
	return nil
}

// publishState merges update into the slot's cached state and publishes it
// retained if anything changed. Unbinding resets the slot.
func (b *Bridge) publishState(slot device.Slot, e setup.Event, update map[string]any) {
	if slot == "" {
		return
	}

	b.stateCacheMu.Lock()
	prev := b.stateCache[slot]
	next := make(map[string]any, len(prev)+len(update))
	if e.Type != setup.EventUnbind {
		maps.Copy(next, prev)
	}
	maps.Copy(next, update)
	if reflect.DeepEqual(prev, next) {
		b.stateCacheMu.Unlock()
		return
	}
	b.stateCache[slot] = next
	b.stateCacheMu.Unlock()

	payload, err := json.Marshal(StateMessage{
		Slot:      slot,
		Label:     e.Label,
		Timestamp: e.Time,
		OK:        e.OK,
		State:     next,
	})
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.State(string(slot)), payload, b.qos, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

// ClearStateCache forgets published states so the next event of each slot
// is republished, e.g. after the broker lost retained messages.
func (b *Bridge) ClearStateCache() {
	b.stateCacheMu.Lock()
	b.stateCache = make(map[device.Slot]map[string]any)
	b.stateCacheMu.Unlock()
}

// handleMQTTMessage parses a command and executes it. Invalid requests are
// acknowledged as failed when they carry enough to address an ack.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	action, ok := b.topics.ActionFromCommand(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidCommand, topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAck(NewAckError(cmd, action, ErrCodeInvalidCommand, "malformed payload"))
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"action", action,
		"slot", cmd.Slot,
		"source", cmd.Source)

	// Stop waits on wg, so Add must not race past it.
	b.stopMu.Lock()
	if b.stopped {
		b.stopMu.Unlock()
		return fmt.Errorf("%w: command %s dropped", ErrBridgeStopped, action)
	}
	b.wg.Add(1)
	b.stopMu.Unlock()
	defer b.wg.Done()

	result, err := b.executeCommand(cmd, action)
	if err != nil {
		b.publishAck(NewAckError(cmd, action, errorCode(err), err.Error()))
		return fmt.Errorf("command %s failed: %w", action, err)
	}
	b.publishAck(NewAckMessage(cmd, action, result))
	return nil
}

// executeCommand runs one action on the rig.
func (b *Bridge) executeCommand(cmd CommandMessage, action string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	switch action {
	case ActionMove:
		return nil, b.executeMove(ctx, cmd)
	case ActionHome:
		slot, err := requireSlot(cmd)
		if err != nil {
			return nil, err
		}
		return nil, b.rig.Home(slot)
	case ActionVelocity:
		slot, err := requireSlot(cmd)
		if err != nil {
			return nil, err
		}
		if cmd.Velocity == nil {
			return nil, fmt.Errorf("%w: velocity is required", ErrInvalidParameters)
		}
		return nil, b.rig.SetVelocity(slot, *cmd.Velocity)
	case ActionLaser:
		return nil, b.executeLaser(cmd)
	case ActionSnap:
		img, err := b.rig.SnapImage()
		if err != nil {
			return nil, err
		}
		return map[string]any{"width": img.Width, "height": img.Height}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, action)
	}
}

func (b *Bridge) executeMove(ctx context.Context, cmd CommandMessage) error {
	if cmd.X != nil && cmd.Y != nil && cmd.Z != nil {
		if err := b.rig.MoveTo(ctx, setup.Vector{X: *cmd.X, Y: *cmd.Y, Z: *cmd.Z}, cmd.Wait); err != nil {
			return err
		}
		if cmd.Theta != nil {
			b.rig.SetPosition(nil, nil, nil, cmd.Theta)
		}
		return nil
	}
	if cmd.X == nil && cmd.Y == nil && cmd.Z == nil && cmd.Theta == nil {
		return fmt.Errorf("%w: no axis given", ErrInvalidParameters)
	}
	if !b.rig.Has3DStage() {
		return setup.ErrNo3DStage
	}
	b.rig.SetPosition(cmd.X, cmd.Y, cmd.Z, cmd.Theta)
	return nil
}

func (b *Bridge) executeLaser(cmd CommandMessage) error {
	slot, err := requireSlot(cmd)
	if err != nil {
		return err
	}
	if cmd.Watts == nil && cmd.On == nil {
		return fmt.Errorf("%w: watts or on is required", ErrInvalidParameters)
	}
	if cmd.Watts != nil {
		if err := b.rig.SetLaserPower(slot, *cmd.Watts); err != nil {
			return err
		}
	}
	if cmd.On != nil {
		return b.rig.SetLaserOn(slot, *cmd.On)
	}
	return nil
}

func requireSlot(cmd CommandMessage) (device.Slot, error) {
	if cmd.Slot == "" {
		return "", fmt.Errorf("%w: slot is required", ErrInvalidParameters)
	}
	return device.ParseSlot(string(cmd.Slot))
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(ack.Action), payload, b.qos, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

var _ setup.Observer = (*Bridge)(nil)
