// Package protocol holds names and limits shared between the runtime core,
// connectors, and external observers (gateway websocket clients).
package protocol

// ProtocolVersion is bumped when event payload shapes change incompatibly.
const ProtocolVersion = 3

// Bus event names.
const (
	EventConnectorConnected    = "connector:connected"
	EventConnectorDisconnected = "connector:disconnected"
	EventEditApplied           = "edit:applied"
	EventSessionStart          = "session:start"
	EventSessionEnd            = "session:end"
	EventTurnStarted           = "turn:started"
	EventTurnCompleted         = "turn:completed"
	EventTurnFailed            = "turn:failed"
	EventActionExecuted        = "action:executed"
	EventScheduleFired         = "schedule:fired"
	EventConfigReloaded        = "config:reloaded"
)

// Hook event names dispatched through the kernel.
const (
	HookBeforeLLMCall      = "before_llm_call"
	HookAfterLLMCall       = "after_llm_call"
	HookBeforeToolCall     = "before_tool_call"
	HookAfterToolCall      = "after_tool_call"
	HookToolResultPersist  = "tool_result_persist"
	HookSessionEnd         = "session_end"
	HookAgentEnd           = "agent_end"
	HookStartupAfterUI     = "startup:after-ui-ready"
	HookShutdown           = "shutdown"
)

// Hook domains.
const (
	DomainKernel    = "kernel"
	DomainLifecycle = "lifecycle"
	DomainCustom    = "custom"
)
