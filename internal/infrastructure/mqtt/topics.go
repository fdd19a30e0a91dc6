package mqtt

import "fmt"

// DefaultTopicPrefix is used when the configuration leaves mqtt.topic_prefix empty.
const DefaultTopicPrefix = "starterkit"

// Topics builds StarterKit MQTT topic names under a common prefix.
// Using these helpers keeps publishers and subscribers in agreement.
//
//	topics := mqtt.NewTopics("starterkit")
//	topics.Operation("with_transaction")
//	// Returns: "starterkit/db/operations/with_transaction"
type Topics struct {
	Prefix string
}

// NewTopics returns a Topics rooted at prefix, or DefaultTopicPrefix when empty.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: starterkit/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// Operation returns the topic for completed database manager calls.
//
// Example: starterkit/db/operations/with_connection
func (t Topics) Operation(operation string) string {
	return fmt.Sprintf("%s/db/operations/%s", t.prefix(), operation)
}

// SettingChanged returns the topic announcing a stored setting change.
//
// Example: starterkit/settings/theme
func (t Topics) SettingChanged(key string) string {
	return fmt.Sprintf("%s/settings/%s", t.prefix(), key)
}

// AllOperations matches every operation topic.
//
// Pattern: starterkit/db/operations/+
func (t Topics) AllOperations() string {
	return fmt.Sprintf("%s/db/operations/+", t.prefix())
}

// AllSettings matches every setting change topic.
//
// Pattern: starterkit/settings/+
func (t Topics) AllSettings() string {
	return fmt.Sprintf("%s/settings/+", t.prefix())
}

// AllTopics matches everything under the prefix.
//
// Pattern: starterkit/#
func (t Topics) AllTopics() string {
	return t.prefix() + "/#"
}
