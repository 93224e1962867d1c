package actions

import (
	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/internal/validation"
)

// BuiltinDeps are the collaborators the built-in handlers need.
type BuiltinDeps struct {
	Interpolator *expressions.Interpolator
	JQ           *expressions.JQ
	Cards        validation.CardValidator
	HTTP         HTTPConfig
	Messaging    MessagingConfig
}

// RegisterBuiltins registers a handler for every node type. The returned
// sub-workflow handler must be bound to an Invoker before sub_workflow
// nodes can run.
func RegisterBuiltins(reg *Registry, deps BuiltinDeps) (*SubWorkflowHandler, error) {
	interp := deps.Interpolator
	if interp == nil {
		interp = expressions.NewInterpolator(nil)
	}
	messenger := NewMessenger(deps.Messaging)
	sub := NewSubWorkflowHandler()

	all := []Handler{
		NewHTTPRequestHandler(deps.HTTP, interp),
		NewConditionHandler(interp),
		NewMultiConditionHandler(interp),
		NewSwitchHandler(interp),
		NewTransformHandler(deps.JQ),
		NewMessageReplyHandler(messenger, interp),
		NewMessagePushHandler(messenger, interp),
		NewMessageCardsHandler(messenger, interp, deps.Cards),
		sub,
	}
	all = append(all, MarkerHandlers()...)

	for _, h := range all {
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}
	return sub, nil
}
