package mqtt

import "fmt"

// DefaultTopicPrefix roots spimrig topics when the config leaves the prefix empty.
const DefaultTopicPrefix = "spimrig"

// Topics builds spimrig MQTT topics under a common prefix:
//
//	{prefix}/command/{action}   requests to the rig (move, home, snap, ...)
//	{prefix}/ack/{action}       results of those requests
//	{prefix}/state/{slot}       retained per-slot state after each change
//	{prefix}/event/{type}       every completed rig operation
//	{prefix}/system/status      retained online/offline status (LWT)
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Command returns the topic a client publishes an action request to.
//
// Example: spimrig/command/move
func (t Topics) Command(action string) string {
	return fmt.Sprintf("%s/command/%s", t.root(), action)
}

// Ack returns the topic carrying the result of an action request.
//
// Example: spimrig/ack/move
func (t Topics) Ack(action string) string {
	return fmt.Sprintf("%s/ack/%s", t.root(), action)
}

// State returns the retained state topic of a slot.
//
// Example: spimrig/state/stage_z
func (t Topics) State(slot string) string {
	return fmt.Sprintf("%s/state/%s", t.root(), slot)
}

// Event returns the topic for events of one type.
//
// Example: spimrig/event/snap
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", t.root(), eventType)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: spimrig/system/status
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// AllCommands matches every action request.
//
// Pattern: spimrig/command/+
func (t Topics) AllCommands() string {
	return t.root() + "/command/+"
}

// AllStates matches every slot state topic.
//
// Pattern: spimrig/state/+
func (t Topics) AllStates() string {
	return t.root() + "/state/+"
}

// AllTopics matches all spimrig traffic. Use with caution.
//
// Pattern: spimrig/#
func (t Topics) AllTopics() string {
	return t.root() + "/#"
}

// ActionFromCommand extracts the action from a command topic. It returns
// false if topic is not a command topic under this prefix.
func (t Topics) ActionFromCommand(topic string) (string, bool) {
	prefix := t.root() + "/command/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	return topic[len(prefix):], true
}
