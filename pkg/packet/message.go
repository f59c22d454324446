package packet

import "strings"

// Message is the service-defined meaning of a custom packet, derived from
// the prefix of its name.
type Message int

const (
	MessageNone Message = iota
	MessageGoalEnable
	MessageGoalDisable
	MessageGoalComplete
	MessageRelationUpdate
	MessageConversationNextTurn
	MessageUninterruptible
	MessageError
	MessageCritical
	MessageGoAway
	MessageIncompleteInteraction
	MessageTask
)

const (
	prefixGoalEnable            = "inworld.goal.enable"
	prefixGoalDisable           = "inworld.goal.disable"
	prefixGoalComplete          = "inworld.goal.complete"
	prefixRelationUpdate        = "inworld.relation.update"
	prefixConversationNextTurn  = "inworld.conversation.next_turn"
	prefixUninterruptible       = "inworld.uninterruptible"
	prefixError                 = "inworld.debug.error"
	prefixCritical              = "inworld.debug.critical-error"
	prefixGoAway                = "inworld.debug.goaway"
	prefixIncompleteInteraction = "inworld.debug.setup-incomplete-interaction"
	prefixTask                  = "inworld.task"
	taskSucceeded               = "inworld.task.succeeded"
	taskFailed                  = "inworld.task.failed"
)

// messagePrefixes is ordered so that longer prefixes sharing a stem are
// tested first.
var messagePrefixes = []struct {
	prefix string
	msg    Message
}{
	{prefixGoalEnable, MessageGoalEnable},
	{prefixGoalDisable, MessageGoalDisable},
	{prefixGoalComplete, MessageGoalComplete},
	{prefixRelationUpdate, MessageRelationUpdate},
	{prefixConversationNextTurn, MessageConversationNextTurn},
	{prefixUninterruptible, MessageUninterruptible},
	{prefixCritical, MessageCritical},
	{prefixError, MessageError},
	{prefixGoAway, MessageGoAway},
	{prefixIncompleteInteraction, MessageIncompleteInteraction},
	{prefixTask, MessageTask},
}

// Message classifies c by its name prefix.
func (c *Custom) Message() Message {
	for _, m := range messagePrefixes {
		if strings.HasPrefix(c.Name, m.prefix) {
			return m.msg
		}
	}
	return MessageNone
}

// TaskName returns the task name of a TASK custom payload.
func (c *Custom) TaskName() (string, bool) {
	if c.Type != CustomTask || c.Name == "" {
		return "", false
	}
	return strings.TrimPrefix(c.Name, prefixTask+"."), true
}

// GoalName returns the goal name of a goal-complete trigger.
func (c *Custom) GoalName() string {
	return strings.TrimPrefix(c.Name, prefixGoalComplete+".")
}

// NextTurnTrigger is the trigger that asks the next character in a
// conversation to speak.
const NextTurnTrigger = prefixConversationNextTurn

// GoalEnableTrigger returns the trigger name enabling goal.
func GoalEnableTrigger(goal string) string { return prefixGoalEnable + "." + goal }

// GoalDisableTrigger returns the trigger name disabling goal.
func GoalDisableTrigger(goal string) string { return prefixGoalDisable + "." + goal }

// TaskSucceeded returns the trigger reporting the success of taskID.
func TaskSucceeded(taskID string) *Custom {
	return &Custom{Name: taskSucceeded, Type: CustomTrigger, Params: map[string]string{"task_id": taskID}}
}

// TaskFailed returns the trigger reporting the failure of taskID.
func TaskFailed(taskID, reason string) *Custom {
	return &Custom{Name: taskFailed, Type: CustomTrigger, Params: map[string]string{"task_id": taskID, "reason": reason}}
}
