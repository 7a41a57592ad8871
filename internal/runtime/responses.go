package runtime

import (
	"fmt"
	"strings"
)

// User-visible templates. Fatal paths never expose raw error text; the
// technical detail stays in the trace and the logs for operators.

func greetingIdle(flows []string) string {
	if len(flows) == 0 {
		return "Hi! There's nothing I can start right now."
	}
	return fmt.Sprintf("Hi! I can help you with: %s. What would you like to do?",
		strings.Join(flows, ", "))
}

func apologyUnderstanding() string {
	return "Sorry, I had trouble understanding that. Could you say it again?"
}

func apologyAction() string {
	return "Sorry, something went wrong while I was working on that. Your progress is saved — please try again."
}

func apologyInternal() string {
	return "Sorry, something went wrong on my side. Let's start over — what would you like to do?"
}

func completionMessage(flowName string) string {
	return fmt.Sprintf("Done — %s is complete.", flowName)
}

func cancelledStepMessage(flowName string) string {
	return fmt.Sprintf("Okay, I won't proceed with %s.", flowName)
}

func workingMessage(action string) string {
	return fmt.Sprintf("One moment while I run %s…", action)
}

// joinResponse glues response fragments into one message.
func joinResponse(parts []string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, " ")
}
