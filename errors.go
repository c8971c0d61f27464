package conductor

import "errors"

var (
	ErrInvalidTool        = errors.New("invalid tool specification")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrInvalidInputSchema = errors.New("invalid input schema")

	ErrPlanAlreadyExecuted = errors.New("plan has already been executed")
	ErrPlanNotInitialized  = errors.New("plan is not initialized")
	ErrStepFailed          = errors.New("plan step failed")

	ErrActionNotFound    = errors.New("action not found")
	ErrActionNotReady    = errors.New("action is not ready for execution")
	ErrUnknownParameter  = errors.New("unknown parameter")
	ErrBrokenToolCall    = errors.New("tool call arguments are not valid JSON")
	ErrInvalidControlMsg = errors.New("invalid control message")
)
