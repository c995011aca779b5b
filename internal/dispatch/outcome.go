package dispatch

// Outcome is how the pipeline finished for one event.
type Outcome int

const (
	OutcomeIgnored        Outcome = iota // nothing to process (nil event, broadcast chat)
	OutcomeAutoReplied                   // away auto-reply sent
	OutcomeNotCommand                    // no prefix or no command token
	OutcomeUnknownCommand                // prefix matched, no handler
	OutcomeRateLimited                   // sender over the window limit
	OutcomeUnauthorized                  // owner-only handler, non-privileged sender
	OutcomeRestricted                    // private mode, non-privileged sender
	OutcomePrefixMismatch                // handler invoked with the other class's prefix
	OutcomeExecuted                      // handler returned nil
	OutcomeFailed                        // handler returned an operational error
	OutcomeInternalError                 // handler returned another error or panicked
)

var outcomeNames = [...]string{
	"ignored",
	"auto_replied",
	"not_command",
	"unknown_command",
	"rate_limited",
	"unauthorized",
	"restricted",
	"prefix_mismatch",
	"executed",
	"failed",
	"internal_error",
}

func (o Outcome) String() string {
	if o >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}
