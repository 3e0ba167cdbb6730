package motion

import (
	"github.com/cjeanneret/radarscan/internal/debug"
)

// Motor is the hardware the controller drives.
// *stepper.Stepper satisfies it.
type Motor interface {
	MoveSteps(steps int) error
	Release() error
}

// Controller sits between the scan logic and the stepper driver.
// It keeps count of the steps actually performed so the physical
// position can be cross-checked against the scan state.
type Controller struct {
	motor Motor
	moved int
}

func NewController(m Motor) *Controller {
	return &Controller{motor: m}
}

// Move performs a signed step command, blocking until it completes.
func (c *Controller) Move(steps int) error {
	if steps == 0 {
		return nil
	}
	if err := c.motor.MoveSteps(steps); err != nil {
		return err
	}
	c.moved += steps
	debug.Verbose("Motion: %+d steps, odometer %d", steps, c.moved)
	return nil
}

// Odometer returns the net number of steps performed since creation.
func (c *Controller) Odometer() int {
	return c.moved
}

// Close de-energises the coils so the motor does not heat while idle.
func (c *Controller) Close() error {
	debug.Verbose("Motion: releasing coils")
	return c.motor.Release()
}
