package chat

import (
	"context"
	"fmt"
)

// StartCamera acquires deviceID, or the default input when empty. Any
// active stream is released first.
func (c *Controller) StartCamera(ctx context.Context, deviceID string) error {
	if c.camera == nil {
		return c.fail(fmt.Errorf("%w: no camera configured", ErrMediaUnavailable))
	}

	c.mu.Lock()
	c.releaseStreamLocked()
	c.mu.Unlock()

	stream, err := c.camera.Acquire(ctx, deviceID)
	if err != nil {
		return c.fail(fmt.Errorf("%w: %w", ErrMediaUnavailable, err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseStreamLocked()
	c.stream = stream
	c.logger.Infof("Camera %s acquired", stream.DeviceID())
	c.presenter.SystemNotice(fmt.Sprintf("Camera on (%s).", stream.DeviceID()))
	return nil
}

func (c *Controller) StopCamera() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return
	}
	c.releaseStreamLocked()
	c.presenter.SystemNotice("Camera off.")
}

// ActiveCamera returns the device ID of the active stream, or "".
func (c *Controller) ActiveCamera() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return ""
	}
	return c.stream.DeviceID()
}

// CapturePhoto grabs a frame from the active stream and sends it.
func (c *Controller) CapturePhoto() error {
	c.mu.Lock()
	stream := c.stream
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return c.fail(ErrNotConnected)
	}
	if stream == nil {
		return c.fail(fmt.Errorf("%w: camera is off", ErrMediaUnavailable))
	}

	data, err := stream.Capture()
	if err != nil {
		return c.fail(fmt.Errorf("%w: %w", ErrMediaUnavailable, err))
	}
	return c.SendPhoto(data)
}

func (c *Controller) VideoInputs(ctx context.Context) ([]DeviceDescriptor, error) {
	if c.camera == nil {
		return nil, c.fail(fmt.Errorf("%w: no camera configured", ErrMediaUnavailable))
	}

	devices, err := c.camera.ListVideoInputs(ctx)
	if err != nil {
		return nil, c.fail(fmt.Errorf("%w: %w", ErrMediaUnavailable, err))
	}
	return devices, nil
}

func (c *Controller) releaseStreamLocked() {
	if c.stream == nil {
		return
	}
	if err := c.camera.Release(c.stream); err != nil {
		c.logger.Warnf("Failed to release camera %s: %v", c.stream.DeviceID(), err)
	}
	c.stream = nil
}
