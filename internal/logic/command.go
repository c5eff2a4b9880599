package logic

// NewCommandState returns the startup state: both set-points at
// DefaultSetPoint, not running.
func NewCommandState() CommandState {
	return CommandState{Pending: DefaultSetPoint, Active: DefaultSetPoint}
}

// ClampSetPoint limits hz to [MinSetPoint, MaxSetPoint].
func ClampSetPoint(hz int) int {
	if hz < MinSetPoint {
		return MinSetPoint
	}
	if hz > MaxSetPoint {
		return MaxSetPoint
	}
	return hz
}

// AdjustPending moves the pending set-point by step and clamps it.
// It returns the new pending value.
func (c *CommandState) AdjustPending(step int) int {
	c.Pending = ClampSetPoint(c.Pending + step)
	return c.Pending
}

// Apply copies pending into active and marks the pump running.
func (c *CommandState) Apply() int {
	c.Active = c.Pending
	c.Running = true
	return c.Active
}

// Stop clears the running flag and reports whether it was set.
// Active is retained for display and logging.
func (c *CommandState) Stop() bool {
	if !c.Running {
		return false
	}
	c.Running = false
	return true
}
