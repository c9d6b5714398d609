package domain

// TopicProcessConsole prefixes every process topic.
const TopicProcessConsole = "PROCESS_CONSOLE"

// TopicSeparator joins the topic prefix and the process name.
const TopicSeparator = "/"

// Topic returns the broadcast topic carrying updates of the named process.
func Topic(processName string) string {
	return TopicProcessConsole + TopicSeparator + processName
}

// Event is the envelope pushed to a session subscribed to Topic.
type Event struct {
	SessionID string `json:"sessionId"`
	Topic     string `json:"topic"`
	Content   any    `json:"content"`
}
