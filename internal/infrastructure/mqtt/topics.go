package mqtt

import "fmt"

// TopicPrefixNode is the base for the node's own housekeeping topics.
const TopicPrefixNode = "fieldnode"

// Topics provides builders for the topics owned by the MQTT client itself.
// Device topics are derived by the device package.
type Topics struct{}

// NodeStatus returns the retained online/offline status topic of a node.
//
// Example: fieldnode/greenhouse-01/status
func (Topics) NodeStatus(nodeID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixNode, nodeID)
}
