package mailbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/levelcode/teamfabric/internal/errors"
)

// MessageType identifies the kind of protocol message.
type MessageType string

const (
	// TypeIdleNotification reports that an agent has gone idle.
	TypeIdleNotification MessageType = "idle_notification"

	// TypeTaskCompleted reports that a task reached completed status.
	TypeTaskCompleted MessageType = "task_completed"

	// TypeShutdownRequest asks the recipient for permission to shut down.
	TypeShutdownRequest MessageType = "shutdown_request"

	// TypeShutdownApproved grants a shutdown request.
	TypeShutdownApproved MessageType = "shutdown_approved"

	// TypeShutdownRejected denies a shutdown request with a reason.
	TypeShutdownRejected MessageType = "shutdown_rejected"

	// TypePlanApprovalRequest submits a plan for review.
	TypePlanApprovalRequest MessageType = "plan_approval_request"

	// TypePlanApprovalResponse answers a plan approval request.
	TypePlanApprovalResponse MessageType = "plan_approval_response"

	// TypeMessage is a direct message to a single teammate.
	TypeMessage MessageType = "message"

	// TypeBroadcast is a message fanned out to every other teammate.
	TypeBroadcast MessageType = "broadcast"
)

// validMessageTypes is the closed set of protocol variants. Anything else
// fails validation.
var validMessageTypes = map[MessageType]bool{
	TypeIdleNotification:     true,
	TypeTaskCompleted:        true,
	TypeShutdownRequest:      true,
	TypeShutdownApproved:     true,
	TypeShutdownRejected:     true,
	TypePlanApprovalRequest:  true,
	TypePlanApprovalResponse: true,
	TypeMessage:              true,
	TypeBroadcast:            true,
}

// ValidateMessageType returns true if the given type is a known protocol
// variant.
func ValidateMessageType(t MessageType) bool {
	return validMessageTypes[t]
}

// timestampLayout renders ISO 8601 with millisecond precision, matching
// what every producer writes.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ProtocolMessage is the wire form of every inbox message. It is a tagged
// union: Type selects the variant and decides which fields are required.
// The zero value is invalid; build messages through the New* constructors
// or set Type, Timestamp, and the variant fields yourself and call
// Validate.
type ProtocolMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`

	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Text    string `json:"text,omitempty"`
	Summary string `json:"summary,omitempty"`

	RequestID string `json:"requestId,omitempty"`
	Reason    string `json:"reason,omitempty"`

	TaskID          string `json:"taskId,omitempty"`
	TaskSubject     string `json:"taskSubject,omitempty"`
	CompletedTaskID string `json:"completedTaskId,omitempty"`

	PlanContent string `json:"planContent,omitempty"`
	Approved    *bool  `json:"approved,omitempty"`
	Feedback    string `json:"feedback,omitempty"`
}

// Time parses the message timestamp. It returns the zero time when the
// timestamp is missing or malformed.
func (m ProtocolMessage) Time() time.Time {
	if m.Timestamp == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Validate checks the message against its variant schema. Unknown types
// are invalid, and every variant requires a parseable ISO 8601 timestamp.
func (m ProtocolMessage) Validate() error {
	if !validMessageTypes[m.Type] {
		return errors.NewValidationError(fmt.Sprintf("Unknown message type %q.", string(m.Type))).WithField("type")
	}
	if m.Timestamp == "" {
		return requiredField(m.Type, "timestamp")
	}
	if _, err := time.Parse(time.RFC3339, m.Timestamp); err != nil {
		return errors.NewValidationError(fmt.Sprintf("Message timestamp %q is not ISO 8601.", m.Timestamp)).WithField("timestamp")
	}

	switch m.Type {
	case TypeIdleNotification:
		if m.From == "" {
			return requiredField(m.Type, "from")
		}
	case TypeTaskCompleted:
		switch {
		case m.From == "":
			return requiredField(m.Type, "from")
		case m.TaskID == "":
			return requiredField(m.Type, "taskId")
		case m.TaskSubject == "":
			return requiredField(m.Type, "taskSubject")
		}
	case TypeShutdownRequest, TypeShutdownApproved:
		switch {
		case m.RequestID == "":
			return requiredField(m.Type, "requestId")
		case m.From == "":
			return requiredField(m.Type, "from")
		}
	case TypeShutdownRejected:
		switch {
		case m.RequestID == "":
			return requiredField(m.Type, "requestId")
		case m.From == "":
			return requiredField(m.Type, "from")
		case m.Reason == "":
			return requiredField(m.Type, "reason")
		}
	case TypePlanApprovalRequest:
		switch {
		case m.RequestID == "":
			return requiredField(m.Type, "requestId")
		case m.From == "":
			return requiredField(m.Type, "from")
		case m.PlanContent == "":
			return requiredField(m.Type, "planContent")
		}
	case TypePlanApprovalResponse:
		switch {
		case m.RequestID == "":
			return requiredField(m.Type, "requestId")
		case m.Approved == nil:
			return requiredField(m.Type, "approved")
		}
	case TypeMessage:
		switch {
		case m.From == "":
			return requiredField(m.Type, "from")
		case m.To == "":
			return requiredField(m.Type, "to")
		case m.Text == "":
			return requiredField(m.Type, "text")
		}
	case TypeBroadcast:
		switch {
		case m.From == "":
			return requiredField(m.Type, "from")
		case m.Text == "":
			return requiredField(m.Type, "text")
		}
	}
	return nil
}

func requiredField(t MessageType, field string) error {
	return errors.NewValidationError(fmt.Sprintf("Message type %q requires field %q.", string(t), field)).WithField(field)
}

// Decode parses and validates a single raw inbox payload.
func Decode(raw json.RawMessage) (ProtocolMessage, error) {
	var msg ProtocolMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ProtocolMessage{}, errors.Wrap(err, "decode message")
	}
	if err := msg.Validate(); err != nil {
		return ProtocolMessage{}, err
	}
	return msg, nil
}

// NewRequestID returns a fresh correlation id for request/response pairs,
// in the form "req-<uuid>". The fabric itself never correlates; callers
// echo the id in responses.
func NewRequestID() string {
	return "req-" + uuid.NewString()
}

// timestampNow renders the current UTC time in the protocol's timestamp
// format.
func timestampNow() string {
	return time.Now().UTC().Format(timestampLayout)
}

// NewIdleNotification builds an idle_notification message. Summary and
// completedTaskID are optional.
func NewIdleNotification(from, summary, completedTaskID string) ProtocolMessage {
	return ProtocolMessage{
		Type:            TypeIdleNotification,
		Timestamp:       timestampNow(),
		From:            from,
		Summary:         summary,
		CompletedTaskID: completedTaskID,
	}
}

// NewTaskCompletedMessage builds a task_completed message.
func NewTaskCompletedMessage(from, taskID, taskSubject string) ProtocolMessage {
	return ProtocolMessage{
		Type:        TypeTaskCompleted,
		Timestamp:   timestampNow(),
		From:        from,
		TaskID:      taskID,
		TaskSubject: taskSubject,
	}
}

// NewShutdownRequest builds a shutdown_request message. Reason is optional.
func NewShutdownRequest(requestID, from, reason string) ProtocolMessage {
	return ProtocolMessage{
		Type:      TypeShutdownRequest,
		Timestamp: timestampNow(),
		RequestID: requestID,
		From:      from,
		Reason:    reason,
	}
}

// NewShutdownApproved builds a shutdown_approved message echoing the
// request id.
func NewShutdownApproved(requestID, from string) ProtocolMessage {
	return ProtocolMessage{
		Type:      TypeShutdownApproved,
		Timestamp: timestampNow(),
		RequestID: requestID,
		From:      from,
	}
}

// NewShutdownRejected builds a shutdown_rejected message. Reason is
// required by the schema.
func NewShutdownRejected(requestID, from, reason string) ProtocolMessage {
	return ProtocolMessage{
		Type:      TypeShutdownRejected,
		Timestamp: timestampNow(),
		RequestID: requestID,
		From:      from,
		Reason:    reason,
	}
}

// NewPlanApprovalRequest builds a plan_approval_request message.
func NewPlanApprovalRequest(requestID, from, planContent string) ProtocolMessage {
	return ProtocolMessage{
		Type:        TypePlanApprovalRequest,
		Timestamp:   timestampNow(),
		RequestID:   requestID,
		From:        from,
		PlanContent: planContent,
	}
}

// NewPlanApprovalResponse builds a plan_approval_response message echoing
// the request id. Feedback is optional.
func NewPlanApprovalResponse(requestID string, approved bool, feedback string) ProtocolMessage {
	return ProtocolMessage{
		Type:      TypePlanApprovalResponse,
		Timestamp: timestampNow(),
		RequestID: requestID,
		Approved:  &approved,
		Feedback:  feedback,
	}
}

// NewDirectMessage builds a message addressed to a single teammate.
// Summary is optional.
func NewDirectMessage(from, to, text, summary string) ProtocolMessage {
	return ProtocolMessage{
		Type:      TypeMessage,
		Timestamp: timestampNow(),
		From:      from,
		To:        to,
		Text:      text,
		Summary:   summary,
	}
}

// NewBroadcastMessage builds a broadcast message. Summary is optional.
func NewBroadcastMessage(from, text, summary string) ProtocolMessage {
	return ProtocolMessage{
		Type:      TypeBroadcast,
		Timestamp: timestampNow(),
		From:      from,
		Text:      text,
		Summary:   summary,
	}
}
