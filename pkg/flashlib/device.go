package flashlib

import (
	"context"
	"encoding/json"
	"errors"
)

// DeviceInfo is the decoded GET_INFO payload.
type DeviceInfo struct {
	Mode    string
	Version string
	Raw     json.RawMessage
}

// DeviceStatus is the decoded GET_STATUS payload.
type DeviceStatus struct {
	State        string
	UpdateActive bool
	Received     int64
	Raw          json.RawMessage
}

// command runs one serialized control round-trip outside an update.
func (u *Updater) command(ctx context.Context, cmd Command, data string) (*Response, error) {
	if !u.Connected() {
		return nil, ErrNotConnected
	}
	u.mu.Lock()
	updating := u.updating
	u.mu.Unlock()
	if updating {
		return nil, ErrUpdateInProgress
	}
	resp, err := u.t.Send(ctx, cmd, data)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &DeviceError{Command: cmd, Message: resp.Message}
	}
	return resp, nil
}

// Info queries the device identity and operating mode.
func (u *Updater) Info(ctx context.Context) (*DeviceInfo, error) {
	resp, err := u.command(ctx, CmdGetInfo, "")
	if err != nil {
		return nil, err
	}
	return &DeviceInfo{Mode: resp.Mode, Version: resp.Version, Raw: resp.Raw}, nil
}

// Status queries the device update state.
func (u *Updater) Status(ctx context.Context) (*DeviceStatus, error) {
	resp, err := u.command(ctx, CmdGetStatus, "")
	if err != nil {
		return nil, err
	}
	return &DeviceStatus{
		State:        resp.State,
		UpdateActive: resp.UpdateActive,
		Received:     resp.Received,
		Raw:          resp.Raw,
	}, nil
}

// PartitionInfo returns the raw GET_PARTITION_INFO payload. Its shape is
// device specific; callers read Response.Raw.
func (u *Updater) PartitionInfo(ctx context.Context) (*Response, error) {
	return u.command(ctx, CmdGetPartitionInfo, "")
}

// StorageInfo returns the raw GET_STORAGE_INFO payload.
func (u *Updater) StorageInfo(ctx context.Context) (*Response, error) {
	return u.command(ctx, CmdGetStorageInfo, "")
}

// ValidateFirmware asks the device to verify its staged image.
func (u *Updater) ValidateFirmware(ctx context.Context) error {
	_, err := u.command(ctx, CmdValidateFirmware, "")
	return err
}

// Restart reboots the device. The connection is usually lost right after; a
// response timeout only means the device left before answering and is not
// reported as an error.
func (u *Updater) Restart(ctx context.Context) error {
	_, err := u.command(ctx, CmdRestart, "")
	var te *TimeoutError
	if errors.As(err, &te) {
		return nil
	}
	return err
}

// Rollback asks the device to boot the previous image.
func (u *Updater) Rollback(ctx context.Context) error {
	_, err := u.command(ctx, CmdRollback, "")
	return err
}
