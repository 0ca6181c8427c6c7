package mailbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/levelcode/teamfabric/internal/util"
)

// planPreviewWidth bounds how much plan content a formatted listing shows.
const planPreviewWidth = 120

// FormatForDisplay formats messages into a human-readable block, grouped
// by type in first-seen order. Intended for CLI output and for injection
// into an agent prompt.
//
// Returns an empty string if there are no messages.
func FormatForDisplay(messages []ProtocolMessage) string {
	if len(messages) == 0 {
		return ""
	}

	groups := make(map[MessageType][]ProtocolMessage)
	var typeOrder []MessageType
	for _, msg := range messages {
		if _, exists := groups[msg.Type]; !exists {
			typeOrder = append(typeOrder, msg.Type)
		}
		groups[msg.Type] = append(groups[msg.Type], msg)
	}

	var b strings.Builder
	b.WriteString("<inbox-messages>\n")

	for i, mt := range typeOrder {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("[%s]\n", strings.ToUpper(string(mt))))
		for _, msg := range groups[mt] {
			if msg.From != "" {
				b.WriteString(fmt.Sprintf("  From: %s\n", msg.From))
			}
			b.WriteString(fmt.Sprintf("  %s\n", displayBody(msg)))
			b.WriteString("\n")
		}
	}

	b.WriteString("</inbox-messages>")
	return b.String()
}

// displayBody renders the variant-specific payload as one line.
func displayBody(msg ProtocolMessage) string {
	switch msg.Type {
	case TypeIdleNotification:
		body := "went idle"
		if msg.Summary != "" {
			body += ": " + msg.Summary
		}
		if msg.CompletedTaskID != "" {
			body += fmt.Sprintf(" (task %s)", msg.CompletedTaskID)
		}
		return body
	case TypeTaskCompleted:
		return fmt.Sprintf("completed task %s: %s", msg.TaskID, msg.TaskSubject)
	case TypeShutdownRequest:
		body := fmt.Sprintf("requests shutdown [%s]", msg.RequestID)
		if msg.Reason != "" {
			body += ": " + msg.Reason
		}
		return body
	case TypeShutdownApproved:
		return fmt.Sprintf("approved shutdown [%s]", msg.RequestID)
	case TypeShutdownRejected:
		return fmt.Sprintf("rejected shutdown [%s]: %s", msg.RequestID, msg.Reason)
	case TypePlanApprovalRequest:
		return fmt.Sprintf("plan for review [%s]: %s", msg.RequestID, util.TruncateString(msg.PlanContent, planPreviewWidth))
	case TypePlanApprovalResponse:
		verdict := "rejected"
		if msg.Approved != nil && *msg.Approved {
			verdict = "approved"
		}
		body := fmt.Sprintf("plan %s [%s]", verdict, msg.RequestID)
		if msg.Feedback != "" {
			body += ": " + msg.Feedback
		}
		return body
	case TypeMessage, TypeBroadcast:
		return msg.Text
	default:
		return string(msg.Type)
	}
}

// FilterOptions controls which messages are included by FormatFiltered.
type FilterOptions struct {
	Types       []MessageType // Only include these types (empty = all)
	Since       time.Time     // Only messages after this time (zero = all)
	From        string        // Only messages from this sender (empty = all)
	MaxMessages int           // Maximum messages to include (0 = unlimited)
}

// FormatFiltered applies filters to messages and formats the result using
// FormatForDisplay. Filters are applied in order: type, since, from, then
// max messages (keeping the most recent).
func FormatFiltered(messages []ProtocolMessage, opts FilterOptions) string {
	return FormatForDisplay(filterMessages(messages, opts))
}

// filterMessages applies FilterOptions to a slice of messages and returns
// the matching subset.
func filterMessages(messages []ProtocolMessage, opts FilterOptions) []ProtocolMessage {
	var result []ProtocolMessage

	typeSet := make(map[MessageType]bool, len(opts.Types))
	for _, t := range opts.Types {
		typeSet[t] = true
	}

	for _, msg := range messages {
		if len(typeSet) > 0 && !typeSet[msg.Type] {
			continue
		}
		if !opts.Since.IsZero() && !msg.Time().After(opts.Since) {
			continue
		}
		if opts.From != "" && msg.From != opts.From {
			continue
		}
		result = append(result, msg)
	}

	if opts.MaxMessages > 0 && len(result) > opts.MaxMessages {
		result = result[len(result)-opts.MaxMessages:]
	}

	return result
}
